package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/clockwork/internal/engine"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/store"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	Database string
	Cycles   int
}

// MachineSummary is the JSON form of one described machine.
type MachineSummary struct {
	Name       string            `json:"name"`
	Class      string            `json:"class"`
	State      string            `json:"state"`
	Enabled    bool              `json:"enabled"`
	Properties map[string]string `json:"properties,omitempty"`
	Text       string            `json:"text"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe <specs-dir> [machine...]",
		Short: "Show machines after they settle",
		Long: `Load the specs, enable every machine and poll until nothing is left
to do, then describe the named machines (all machines by default).

With --db, persistent properties are restored from the database first.
The database is only read.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "restore persistent properties from this database")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 8, "maximum poll cycles before describing")

	return cmd
}

func runDescribe(opts *DescribeOptions, specsDir string, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	prog, err := loadValidProgram(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	reg := machine.NewRegistry(machine.WithLogger(logger))
	if err := prog.Load(reg); err != nil {
		return failLoad(formatter, err)
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		if _, err := st.RestorePersistent(context.Background(), reg); err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to restore properties", err)
		}
	}

	rt := engine.New(reg, engine.WithLogger(logger))
	rt.Start()
	for i := 0; i < opts.Cycles; i++ {
		res, _ := rt.PollOnce()
		formatter.VerboseLog("cycle %d: %d passes, %d evaluations", i+1, res.Passes, res.Evaluations)
		if res.Settled {
			break
		}
	}

	var targets []*machine.Instance
	if len(names) == 0 {
		targets = reg.Instances()
	} else {
		for _, name := range names {
			m := reg.Lookup(name)
			if m == nil {
				_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no machine %q", name), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("no machine %q", name))
			}
			targets = append(targets, m)
		}
	}

	if formatter.JSON() {
		summaries := make([]MachineSummary, len(targets))
		for i, m := range targets {
			summaries[i] = summarize(m)
		}
		return formatter.Success(summaries)
	}
	for _, m := range targets {
		fmt.Fprint(formatter.Writer, m.Describe())
	}
	return nil
}

func summarize(m *machine.Instance) MachineSummary {
	props := m.Properties()
	s := MachineSummary{
		Name:       m.FullName(),
		Class:      m.Class().Name,
		State:      m.State(),
		Enabled:    m.Enabled(),
		Properties: make(map[string]string, len(props)),
		Text:       m.Describe(),
	}
	for k, v := range props {
		s.Properties[k] = v.String()
	}
	return s
}
