package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
	"legalrag/internal/structure"
	"legalrag/internal/summarizer"
)

const (
	structureSuffix = "_structure.json"
	summariesSuffix = "_summaries.json"
	chunksSuffix    = "_chunks.json"

	fallbackSentences = 3
)

// Options configures where artifacts live and how they are interpreted.
type Options struct {
	StructuredDir string
	// ChunksDir defaults to StructuredDir.
	ChunksDir         string
	Registry          Registry
	FallbackSummaries bool
	// Metrics receives the chunk count of every published snapshot.
	Metrics *metrics.Metrics
}

// Loader reads artifact folders into a Corpus.
type Loader struct {
	opts       Options
	summarizer *summarizer.FrequencySummarizer
	log        zerolog.Logger
}

// NewLoader creates a loader. An empty registry falls back to DefaultRegistry.
func NewLoader(opts Options, log zerolog.Logger) *Loader {
	if opts.ChunksDir == "" {
		opts.ChunksDir = opts.StructuredDir
	}
	if len(opts.Registry) == 0 {
		opts.Registry = DefaultRegistry()
	}
	return &Loader{
		opts:       opts,
		summarizer: summarizer.NewFrequencySummarizer(),
		log:        logger.Component(log, "corpus"),
	}
}

// Roots returns the directories the loader reads from.
func (l *Loader) Roots() []string {
	if l.opts.ChunksDir == l.opts.StructuredDir {
		return []string{l.opts.StructuredDir}
	}
	return []string{l.opts.StructuredDir, l.opts.ChunksDir}
}

type summariesFile struct {
	Summaries map[string]string `json:"summaries"`
}

// Load aggregates every registered folder under the structured root, in
// lexical folder order. Missing or malformed artifacts are logged and
// skipped; only an unreadable root is an error.
func (l *Loader) Load() (*Corpus, error) {
	entries, err := os.ReadDir(l.opts.StructuredDir)
	if err != nil {
		return nil, fmt.Errorf("read corpus root %q: %w", l.opts.StructuredDir, err)
	}

	var (
		documents []domain.DocumentStructure
		chunks    []domain.Chunk
		summaries = map[string]string{}
		owners    = map[string]string{}
		needsFill []DocumentInfo
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder := entry.Name()
		info, ok := l.opts.Registry[folder]
		if !ok {
			l.log.Debug().Str("folder", folder).Msg("skipping unregistered folder")
			continue
		}
		dir := filepath.Join(l.opts.StructuredDir, folder)

		if doc, ok := l.loadStructure(dir, info); ok {
			documents = append(documents, doc)
		}

		hasSummaries := false
		if sums, ok := l.loadSummaries(dir, info); ok {
			hasSummaries = true
			for title, text := range sums {
				if prev, dup := owners[title]; dup {
					l.log.Warn().
						Str("title", title).
						Str("previous", prev).
						Str("document", info.Title).
						Msg("summary key collision, keeping the later document")
				}
				summaries[title] = text
				owners[title] = info.Title
			}
		}

		docChunks := l.loadChunks(filepath.Join(l.opts.ChunksDir, folder), info)
		chunks = append(chunks, docChunks...)

		if !hasSummaries && l.opts.FallbackSummaries && len(docChunks) > 0 {
			needsFill = append(needsFill, info)
		}
	}

	for _, info := range needsFill {
		added := l.fillSummaries(summaries, chunks, info)
		l.log.Info().Str("document", info.Title).Int("summaries", added).Msg("built fallback summaries")
	}

	c := New(documents, summaries, chunks)
	st := c.Stats()
	l.log.Info().
		Int("documents", st.Documents).
		Int("summaries", st.Summaries).
		Int("chunks", st.Chunks).
		Msg("corpus loaded")
	return c, nil
}

func (l *Loader) loadStructure(dir string, info DocumentInfo) (domain.DocumentStructure, bool) {
	var doc domain.DocumentStructure
	if !l.readArtifact(dir, structureSuffix, info, &doc) {
		return doc, false
	}
	doc.DocumentTitle = info.Title
	doc.DocumentType = info.Type
	l.flagLargeNumerals(doc.Structure, info)
	return doc, true
}

func (l *Loader) loadSummaries(dir string, info DocumentInfo) (map[string]string, bool) {
	var f summariesFile
	if !l.readArtifact(dir, summariesSuffix, info, &f) {
		return nil, false
	}
	return f.Summaries, true
}

func (l *Loader) loadChunks(dir string, info DocumentInfo) []domain.Chunk {
	var chunks []domain.Chunk
	if !l.readArtifact(dir, chunksSuffix, info, &chunks) {
		return nil
	}
	for i := range chunks {
		if chunks[i].DocumentTitle == "" {
			chunks[i].DocumentTitle = info.Title
		}
		if chunks[i].DocumentType == "" {
			chunks[i].DocumentType = info.Type
		}
	}
	return chunks
}

// readArtifact decodes the first file in dir ending in suffix into v.
func (l *Loader) readArtifact(dir, suffix string, info DocumentInfo, v any) bool {
	path, err := findArtifact(dir, suffix)
	if err != nil {
		l.log.Warn().Err(err).Str("document", info.Title).Str("artifact", suffix).Msg("artifact missing")
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("artifact unreadable")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("artifact malformed")
		return false
	}
	return true
}

var errNoArtifact = errors.New("no matching artifact")

func findArtifact(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", dir, errNoArtifact)
		}
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s/*%s: %w", dir, suffix, errNoArtifact)
}

func (l *Loader) flagLargeNumerals(nodes []domain.StructureNode, info DocumentInfo) {
	for _, n := range nodes {
		if found := structure.UntranslatedNumerals(n.Title); len(found) > 0 {
			l.log.Debug().
				Str("document", info.Title).
				Str("title", n.Title).
				Strs("numerals", found).
				Msg("title numeral outside the I-X table, fragment matching needs the literal numeral")
		}
		l.flagLargeNumerals(n.Children, info)
	}
}

// fillSummaries adds extractive summaries for the sections of one document
// that have none yet. Returns the number of summaries added.
func (l *Loader) fillSummaries(summaries map[string]string, chunks []domain.Chunk, info DocumentInfo) int {
	texts := map[string][]string{}
	var order []string
	for _, c := range chunks {
		if c.DocumentType != info.Type {
			continue
		}
		for _, title := range c.SectionTitles() {
			if _, ok := texts[title]; !ok {
				order = append(order, title)
			}
			texts[title] = append(texts[title], c.Text)
		}
	}
	sort.Strings(order)

	added := 0
	for _, title := range order {
		if _, ok := summaries[title]; ok {
			continue
		}
		summaries[title] = l.summarizer.Summarize(strings.Join(texts[title], " "), fallbackSentences)
		added++
	}
	return added
}
