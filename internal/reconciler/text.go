package reconciler

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/svtfetch/backend/internal/download"
)

// Supported lists the display languages, preferred first
var Supported = []language.Tag{language.Swedish, language.English}

// message keys
const (
	keyEpisodes   = "episodes"
	keyNoJobs     = "no_jobs"
	keyFetchError = "fetch_error"
	keyUpdated    = "updated"
	keyFiles      = "files"
)

var translations = map[language.Tag]map[string]string{
	language.Swedish: {
		statusKey(download.StatusQueued):        "I kö",
		statusKey(download.StatusDownloading):   "Laddar ner",
		statusKey(download.StatusCompleted):     "Klar",
		statusKey(download.StatusFailed):        "Misslyckades",
		episodeKey(download.EpisodePending):     "Väntar",
		episodeKey(download.EpisodeDownloading): "Laddar ner",
		episodeKey(download.EpisodeCompleted):   "Klar",
		episodeKey(download.EpisodeSkipped):     "Hoppade över",
		keyEpisodes:                             "%d av %d avsnitt",
		keyNoJobs:                               "Inga nedladdningar",
		keyFetchError:                           "Kunde inte hämta status (%d försök): %v",
		keyUpdated:                              "Uppdaterad %s",
		keyFiles:                                "Nedladdade filer",
	},
	language.English: {
		statusKey(download.StatusQueued):        "Queued",
		statusKey(download.StatusDownloading):   "Downloading",
		statusKey(download.StatusCompleted):     "Completed",
		statusKey(download.StatusFailed):        "Failed",
		episodeKey(download.EpisodePending):     "Pending",
		episodeKey(download.EpisodeDownloading): "Downloading",
		episodeKey(download.EpisodeCompleted):   "Done",
		episodeKey(download.EpisodeSkipped):     "Skipped",
		keyEpisodes:                             "%d of %d episodes",
		keyNoJobs:                               "No downloads",
		keyFetchError:                           "Could not fetch status (%d attempts): %v",
		keyUpdated:                              "Updated %s",
		keyFiles:                                "Downloaded files",
	},
}

var catalogue = newCatalog()

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(fmt.Sprintf("reconciler: bad message %q for %s: %v", key, tag, err))
			}
		}
	}
	return b
}

func statusKey(s download.Status) string {
	return "status." + string(s)
}

func episodeKey(s download.EpisodeStatus) string {
	return "episode." + string(s)
}

// Texts renders display strings in one language
type Texts struct {
	tag     language.Tag
	printer *message.Printer
}

// NewTexts picks the closest supported language to lang, e.g. "sv-SE"
func NewTexts(lang string) *Texts {
	tag, _ := language.Parse(lang)
	_, idx, _ := language.NewMatcher(Supported).Match(tag)
	chosen := Supported[idx]
	return &Texts{tag: chosen, printer: message.NewPrinter(chosen, message.Catalog(catalogue))}
}

// Language returns the language in use
func (t *Texts) Language() language.Tag {
	return t.tag
}

// Status is the display text of a job status
func (t *Texts) Status(s download.Status) string {
	return t.printer.Sprintf(statusKey(s))
}

// EpisodeStatus is the display text of an episode status
func (t *Texts) EpisodeStatus(s download.EpisodeStatus) string {
	return t.printer.Sprintf(episodeKey(s))
}

func (t *Texts) sprintf(key string, args ...interface{}) string {
	return t.printer.Sprintf(key, args...)
}
