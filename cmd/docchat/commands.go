package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tokligence/docchat/internal/bootstrap"
	"github.com/tokligence/docchat/internal/config"
	"github.com/tokligence/docchat/internal/document"
	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/modelclient"
	"github.com/tokligence/docchat/internal/prompts"
	"github.com/tokligence/docchat/internal/stream"
	"github.com/tokligence/docchat/internal/version"
)

// initCommand scaffolds the config directory.
func initCommand() *cobra.Command {
	var o bootstrap.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write config/setting.ini and config/<env>/docchat.ini",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap.Init(o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written under %s\n", strings.TrimSuffix(o.Root, "/")+"/config")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.Root, "root", ".", "Directory to write config/ into")
	f.StringVar(&o.Environment, "env", "dev", "Environment name")
	f.StringVar(&o.StoreDriver, "store-driver", config.DriverSQLite, "sqlite, postgres or mongo")
	f.StringVar(&o.StoreDSN, "store-dsn", "", "Store DSN or sqlite path")
	f.StringVar(&o.ModelBackend, "model-backend", config.BackendOllama, "ollama or loopback")
	f.StringVar(&o.ModelBaseURL, "model-base-url", config.DefaultModelBaseURL, "Model server address")
	f.StringVar(&o.Model, "model-name", config.DefaultModel, "Default model")
	f.BoolVar(&o.Force, "force", false, "Overwrite existing files")
	return cmd
}

// extractCommand runs the extractors over saved model output.
func extractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Parse questions or grades out of saved model output",
	}

	var (
		count  int
		qaJSON bool
	)
	qa := &cobra.Command{
		Use:   "qa [file|-]",
		Short: "Extract numbered Q/A pairs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			pairs, format := extract.ParseQAPairs(text, count)
			if qaJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"format": format, "qa_pairs": nonNil(pairs)})
			}
			if len(pairs) == 0 {
				return errors.New("no questions found")
			}
			printPairs(cmd.OutOrStdout(), pairs)
			return nil
		},
	}
	qa.Flags().IntVar(&count, "count", extract.DefaultQuestionCount, "Maximum number of pairs")
	qa.Flags().BoolVar(&qaJSON, "json", false, "Print JSON")

	var evalJSON bool
	eval := &cobra.Command{
		Use:   "eval [file|-]",
		Short: "Extract score, correct answer and feedback",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			e, format := extract.ParseEvaluation(text)
			if evalJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"format": format, "evaluation": e})
			}
			printEvaluation(cmd.OutOrStdout(), e)
			return nil
		},
	}
	eval.Flags().BoolVar(&evalJSON, "json", false, "Print JSON")

	cmd.AddCommand(qa, eval)
	return cmd
}

func summaryCommand(opts *options) *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Stream a summary of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			doc, err := readDocument(docPath)
			if err != nil {
				return err
			}
			prompt, err := rt.prompts.Summary(doc.Text)
			if err != nil {
				return err
			}
			_, err = rt.stream(cmd, prompt, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "PDF or TXT document")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func askCommand(opts *options) *cobra.Command {
	var docPath, question string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Stream an answer to a question about a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(question) == "" {
				return errors.New("--question must not be empty")
			}
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			doc, err := readDocument(docPath)
			if err != nil {
				return err
			}
			prompt, err := rt.prompts.Ask(doc.Text, question)
			if err != nil {
				return err
			}
			_, err = rt.stream(cmd, prompt, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "PDF or TXT document")
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to ask")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func challengeCommand(opts *options) *cobra.Command {
	var (
		docPath string
		count   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Generate comprehension questions for a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			doc, err := readDocument(docPath)
			if err != nil {
				return err
			}
			if count <= 0 {
				count = rt.cfg.ChallengeCount
			}
			prompt, err := rt.prompts.Challenge(doc.Text, count)
			if err != nil {
				return err
			}
			// With --json only the parsed pairs are printed.
			live := cmd.ErrOrStderr()
			if asJSON {
				live = io.Discard
			}
			reply, err := rt.stream(cmd, prompt, live)
			if err != nil {
				return err
			}
			pairs, format := extract.ParseQAPairs(reply, count)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"format": format, "qa_pairs": nonNil(pairs)})
			}
			if len(pairs) == 0 {
				return errors.New("no questions could be extracted from the model reply")
			}
			printPairs(cmd.OutOrStdout(), pairs)
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "PDF or TXT document")
	cmd.Flags().IntVar(&count, "count", 0, "Number of questions (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the extracted pairs as JSON")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func modelsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the model server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			models, err := rt.model.Models(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				marker := " "
				if m.Name == rt.model.Model() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\t%d\n", marker, m.Name, m.Family, m.Size)
			}
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.FullInfo())
		},
	}
}

// modelRuntime bundles what the model-backed commands need.
type modelRuntime struct {
	cfg     config.Config
	model   *bootstrap.Model
	prompts *prompts.Builder
}

func openRuntime(opts *options) (*modelRuntime, error) {
	cfg, err := config.Load(opts.ConfigRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Loopback {
		cfg.ModelBackend = config.BackendLoopback
	}
	if strings.TrimSpace(opts.Model) != "" {
		cfg.Model = opts.Model
	}
	builder, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	model, err := bootstrap.OpenModel(cfg, nil)
	if err != nil {
		return nil, err
	}
	return &modelRuntime{cfg: cfg, model: model, prompts: builder}, nil
}

func (rt *modelRuntime) Close() error {
	return rt.model.Close()
}

// stream sends prompt, copies fragments to live as they arrive and returns
// the whole reply.
func (rt *modelRuntime) stream(cmd *cobra.Command, prompt string, live io.Writer) (string, error) {
	var reply stream.Accumulator
	res, err := rt.model.Stream(cmd.Context(), modelclient.Request{Prompt: prompt}, stream.Tee(reply.Append, func(s string) {
		fmt.Fprint(live, s)
	}))
	if reply.Len() > 0 {
		fmt.Fprintln(live)
	}
	if err != nil {
		return "", err
	}
	if res.NoBody {
		return "", errors.New(stream.NoBodyMessage)
	}
	if res.UpstreamError != "" {
		return "", fmt.Errorf("model server: %s", res.UpstreamError)
	}
	return reply.String(), nil
}

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readDocument(path string) (document.Extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document.Extracted{}, err
	}
	return document.Extract(path, data)
}

func printPairs(w io.Writer, pairs []extract.QAPair) {
	for i, p := range pairs {
		fmt.Fprintf(w, "%d. Q: %s\n   A: %s\n", i+1, p.Question, p.Answer)
	}
}

func printEvaluation(w io.Writer, e extract.Evaluation) {
	score := "-"
	if e.Score != nil {
		score = fmt.Sprint(*e.Score)
	}
	fmt.Fprintf(w, "Score: %s\nCorrect Answer: %s\nFeedback: %s\n", score, e.CorrectAnswer, e.Feedback)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(pairs []extract.QAPair) []extract.QAPair {
	if pairs == nil {
		return []extract.QAPair{}
	}
	return pairs
}
