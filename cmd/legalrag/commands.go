package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"legalrag/internal/indexer"
	"legalrag/internal/server"
	"legalrag/internal/session"
	"legalrag/internal/tui"
)

func newChatCmd(root *rootFlags) *cobra.Command {
	var task, model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.buildSession(cmd.Context()); err != nil {
				return err
			}
			a.watchCorpus(cmd.Context())

			st, err := a.orch.StateFor(task, model)
			if err != nil {
				return err
			}
			timeout := time.Duration(cfg.Router.TimeoutSecs+cfg.Generator.TimeoutSecs) * time.Second
			p := tea.NewProgram(tui.New(a.orch, st, timeout), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task (system prompt) to start with")
	cmd.Flags().StringVar(&model, "model", "", "Generator model to start with")
	return cmd
}

func newAskCmd(root *rootFlags) *cobra.Command {
	var task, model string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the trace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.buildSession(cmd.Context()); err != nil {
				return err
			}
			st, err := a.orch.StateFor(task, model)
			if err != nil {
				return err
			}
			answer, _, trace := a.orch.Answer(cmd.Context(), st, strings.Join(args, " "))
			return printTurn(cmd.OutOrStdout(), answer, trace, asJSON)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "Task (system prompt) to answer with")
	cmd.Flags().StringVar(&model, "model", "", "Generator model to answer with")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print answer and trace as JSON")
	return cmd
}

func printTurn(w io.Writer, answer string, t session.Trace, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Answer string        `json:"answer"`
			Trace  session.Trace `json:"trace"`
		}{answer, t})
	}
	fmt.Fprintln(w, answer)
	fmt.Fprintf(w, "\n[path=%s", t.Path)
	if t.Model != "" {
		fmt.Fprintf(w, " model=%s", t.Model)
	}
	if t.Degraded {
		fmt.Fprint(w, " degraded")
	}
	fmt.Fprintf(w, " took=%s]\n", t.Duration.Round(time.Millisecond))
	for i, h := range t.Hits {
		fmt.Fprintf(w, "%2d. [%s] Art. %s, Comma %s  %.3f\n",
			i+1, h.Chunk.DocumentTitle, h.Chunk.ArticleID, h.Chunk.ParagraphID, h.FinalScore())
	}
	return nil
}

func newIndexCmd(root *rootFlags) *cobra.Command {
	var opts indexer.Options
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed every corpus chunk and upsert it into the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if cfg.VectorStore.Type == "memory" || cfg.VectorStore.Type == "" {
				return errors.New("the in-memory store is rebuilt at startup; configure qdrant, pgvector or milvus to index")
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := indexer.New(a.embedder, a.store, opts, a.log).
				Index(cmd.Context(), a.corpus.Current().Chunks())
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d documents (%d failed batches)\n",
				report.Chunks, report.Documents, report.FailedBatches)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "Delete each document's existing points before writing")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", indexer.DefaultBatchSize, "Chunks per embedding request")
	return cmd
}

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.buildSession(cmd.Context()); err != nil {
				return err
			}
			a.watchCorpus(cmd.Context())

			if cfg.Server.Mode != "" {
				gin.SetMode(cfg.Server.Mode)
			}
			sessions := session.NewManager(a.orch, a.metrics)
			idle := time.Duration(cfg.Session.IdleTimeoutMins) * time.Minute
			go sessions.RunJanitor(cmd.Context(), time.Minute, idle)

			return server.New(sessions, a.corpus, a.registry, a.log).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}
