package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"metacurator/internal/config"
	"metacurator/internal/dispatch"
	"metacurator/internal/document"
	"metacurator/internal/llm"
	"metacurator/internal/logging"
	"metacurator/internal/lookup"
	"metacurator/internal/loop"
	"metacurator/internal/prompts"
	"metacurator/internal/protocol"
)

var version = "dev"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metacurator",
		Short: "Build dataset metadata by conversing with an AI assistant",
		Long: "metacurator helps you assemble the metadata record for a dataset you are\n" +
			"preparing to publish. Chat about your data, paste DOIs or arXiv ids, and\n" +
			"let the assistant propose structured field updates that are merged into a\n" +
			"persistent document without ever clobbering values you pinned.",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("document", "dataset.yaml", "path of the metadata document")
	root.PersistentFlags().String("project", "", "project id selecting a project protocol layer")
	root.PersistentFlags().String("field", "", "research field selecting a field protocol layer")
	root.PersistentFlags().String("root", ".", "project root for file reads and suggestions")
	root.PersistentFlags().Bool("curator", false, "use curator-mode instructions instead of metadata mode")

	_ = viper.BindPFlags(root.PersistentFlags())
	viper.SetEnvPrefix("METACURATOR")
	viper.AutomaticEnv()

	root.AddCommand(newChatCmd(), newResolveCmd(), newLockCmd(), newShowCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("metacurator %s\n", version)
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the effective curation protocol for the current selection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewComponentLogger("protocol")
			resolver := protocol.NewResolver(protocol.DefaultBaseDir(), logger)
			effective := resolver.Resolve(viper.GetString("project"), viper.GetString("field"))

			printList := func(title string, items []string) {
				cmd.Println(bold(title))
				if len(items) == 0 {
					cmd.Println(gray("  (none)"))
					return
				}
				for _, item := range items {
					cmd.Printf("  - %s\n", item)
				}
			}
			printList("Include patterns", effective.IncludePatterns)
			printList("Exclude patterns", effective.ExcludePatterns)
			printList("General prompts", effective.GeneralPrompts)
			printList("Metadata prompts", effective.MetadataPrompts)
			printList("Curator prompts", effective.CuratorPrompts)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current metadata document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := document.LoadFile(viper.GetString("document"))
			if err != nil {
				return err
			}
			if len(doc.Fields) == 0 {
				cmd.Println(gray("(no fields captured yet)"))
				return nil
			}
			for _, name := range doc.SetFields() {
				marker := " "
				if doc.IsLocked(name) {
					marker = yellow("*")
				}
				value, _ := doc.Get(name)
				cmd.Printf("%s %s: %v\n", marker, bold(document.HumanName(name)), value)
			}
			return nil
		},
	}
}

func newLockCmd() *cobra.Command {
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock <field>...",
		Short: "Pin fields against assistant writes (or release them with --unlock)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("document")
			doc, err := document.LoadFile(path)
			if err != nil {
				return err
			}
			for _, name := range args {
				if unlock {
					doc.Unlock(name)
					cmd.Printf("unlocked %s\n", name)
				} else {
					doc.Lock(name)
					cmd.Printf("locked %s\n", name)
				}
			}
			return document.SaveFile(path, doc)
		},
	}
	cmd.Flags().BoolVar(&unlock, "unlock", false, "release the pin instead of setting it")
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the assistant and merge its updates",
		Long: "Sends one message (from the argument or stdin) through the curation loop\n" +
			"and writes the merged document back. Press Ctrl-C to cancel cooperatively;\n" +
			"an in-flight model call finishes before the turn stops.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				return fmt.Errorf("no API key configured: set api_key in ~/.metacurator.json")
			}

			input := strings.Join(args, " ")
			if strings.TrimSpace(input) == "" {
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Buffer(make([]byte, 1<<20), 1<<20)
				var lines []string
				for scanner.Scan() {
					lines = append(lines, scanner.Text())
				}
				input = strings.Join(lines, "\n")
			}
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("nothing to send")
			}

			docPath := viper.GetString("document")
			doc, err := document.LoadFile(docPath)
			if err != nil {
				return err
			}

			curationLoop, err := buildLoop(cfg)
			if err != nil {
				return err
			}

			cancel := loop.NewCancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, yellow("Cancelling after the current call..."))
				cancel.Set()
			}()

			result := curationLoop.RunTurn(context.Background(), input, doc, cancel)

			switch result.Outcome {
			case loop.OutcomeSuccess:
				cmd.Println(result.Display)
			case loop.OutcomeCancelled:
				cmd.Println(yellow(result.Display))
			case loop.OutcomeExceeded:
				cmd.Println(yellow(result.Display))
			case loop.OutcomeError:
				cmd.Println(red(result.Display))
			}

			if result.Analysis != nil && len(result.Analysis.FileSuggestions) > 0 {
				cmd.Println()
				cmd.Println(bold("File suggestions:"))
				for _, s := range result.Analysis.FileSuggestions {
					cmd.Printf("  %s %s %s\n", green("+"), s.Path, gray(s.Reason))
				}
			}

			if err := document.SaveFile(docPath, result.Doc); err != nil {
				return fmt.Errorf("save document: %w", err)
			}
			return nil
		},
	}
}

func buildLoop(cfg *config.Config) (*loop.Loop, error) {
	logger := logging.NewComponentLogger("loop")

	composer, err := prompts.NewComposer()
	if err != nil {
		return nil, err
	}

	model := llm.NewClient(llm.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logging.NewComponentLogger("llm"))

	dispatcher := dispatch.NewClientDispatcher(lookup.NewClient(), logging.NewComponentLogger("dispatch"))

	protocolDir := cfg.ProtocolDir
	if protocolDir == "" {
		protocolDir = protocol.DefaultBaseDir()
	}
	resolver := protocol.NewResolver(protocolDir, logging.NewComponentLogger("protocol"))

	mode := prompts.ModeMetadata
	if viper.GetBool("curator") {
		mode = prompts.ModeCurator
	}

	projectID := viper.GetString("project")
	if projectID == "" {
		projectID = cfg.ProjectID
	}
	fieldName := viper.GetString("field")
	if fieldName == "" {
		fieldName = cfg.Field
	}
	projectRoot := viper.GetString("root")
	if cfg.ProjectRoot != "" && projectRoot == "." {
		projectRoot = cfg.ProjectRoot
	}

	return loop.New(model, composer, dispatcher, resolver, loop.Options{
		ProjectID:   projectID,
		FieldName:   fieldName,
		ProjectRoot: projectRoot,
		Mode:        mode,
		OnStatus: func(message string) {
			fmt.Fprintln(os.Stderr, gray(message))
		},
		Logger: logger,
	}), nil
}
