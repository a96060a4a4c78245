package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/config"
	"legalrag/internal/domain"
	"legalrag/internal/session"
)

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"chat", "ask", "index", "serve"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestAskRequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestPrintTurn(t *testing.T) {
	trace := session.Trace{
		Path:     session.PathRetrieval,
		Model:    "pro",
		Duration: 1500 * time.Millisecond,
		Hits: []domain.SearchHit{{
			Chunk: domain.Chunk{DocumentTitle: "Costituzione", ArticleID: "13", ParagraphID: "2"},
			Score: 0.8, Bonus: 0.02,
		}},
	}
	var out bytes.Buffer
	require.NoError(t, printTurn(&out, "risposta", trace, false))
	assert.Equal(t, "risposta\n\n[path=content/general model=pro took=1.5s]\n 1. [Costituzione] Art. 13, Comma 2  0.820\n", out.String())

	out.Reset()
	require.NoError(t, printTurn(&out, "risposta", trace, true))
	var decoded struct {
		Answer string `json:"answer"`
		Trace  struct {
			Path string `json:"path"`
		} `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "risposta", decoded.Answer)
	assert.Equal(t, "content/general", decoded.Trace.Path)
}

func TestNewLoggerCarriesLogSection(t *testing.T) {
	cfg := &config.AppConfig{Log: config.LogConfig{Level: "debug", Pretty: true, WithCaller: true}}
	lc := newLogger(cfg)
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Pretty)
	assert.True(t, lc.WithCaller)
}
