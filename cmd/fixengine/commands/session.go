package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fixengine/internal/cli/output"
	"fixengine/internal/config"
	"fixengine/internal/dictionary"
	"fixengine/internal/engine"
	"fixengine/internal/registry"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage FIX sessions",
	Long: `Create and administer FIX sessions against the engine's admin surface.

Every subcommand loads the engine's configuration and durable registry (if
configured), performs one admin action, and exits — there is no standing
network admin surface, only this in-process CLI, per the engine's scope.`,
}

func init() {
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionConnectCmd)
	sessionCmd.AddCommand(sessionDisconnectCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
	sessionCmd.AddCommand(sessionSetSeqCmd)
	sessionCmd.AddCommand(sessionResetSeqCmd)
	sessionCmd.AddCommand(sessionTriggerEodCmd)
	sessionCmd.AddCommand(sessionTestRequestCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

// newEngine loads configuration and a throwaway dictionary/engine pair for
// a single admin action. It does not call Start: no acceptor/initiator
// network activity happens unless a subcommand explicitly calls Connect.
func newEngine() (*engine.Engine, *config.EngineConfig, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}
	dict, err := dictionary.Load(cfg.Dictionary.BaseDir, cfg.Dictionary.RootFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load FIX dictionary: %w", err)
	}
	return engine.New(cfg, dict), cfg, nil
}

// loadExisting is newEngine plus LoadSessions, for subcommands that act on
// a session created by a prior `session create` call.
func loadExisting(ctx context.Context) (*engine.Engine, error) {
	e, _, err := newEngine()
	if err != nil {
		return nil, err
	}
	if _, err := e.LoadSessions(ctx); err != nil {
		return nil, fmt.Errorf("load sessions from registry: %w", err)
	}
	return e, nil
}

var (
	createSenderCompID   string
	createTargetCompID   string
	createQualifier      string
	createConnectionType string
	createPort           int
	createTargetHost     string
	createHeartbeat      time.Duration
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create (and persist) a new session",
	Long: `Create a new FIX session and persist its configuration to the
durable registry, so it is picked up by the next "fixengine start".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Stop()

		sc := config.SessionConfig{
			SenderCompID:      createSenderCompID,
			TargetCompID:      createTargetCompID,
			Qualifier:         createQualifier,
			ConnectionType:    createConnectionType,
			Port:              createPort,
			TargetHost:        createTargetHost,
			HeartbeatInterval: createHeartbeat,
		}
		id, err := e.CreateSession(sc)
		if err != nil {
			return err
		}
		cmd.Printf("session %s created\n", id)
		return nil
	},
}

func init() {
	f := sessionCreateCmd.Flags()
	f.StringVar(&createSenderCompID, "sender-comp-id", "", "SenderCompID (required)")
	f.StringVar(&createTargetCompID, "target-comp-id", "", "TargetCompID (required)")
	f.StringVar(&createQualifier, "qualifier", "", "session qualifier, for multiple sessions sharing one CompID pair")
	f.StringVar(&createConnectionType, "connection-type", "initiator", "acceptor or initiator")
	f.IntVar(&createPort, "port", 0, "TCP port (required)")
	f.StringVar(&createTargetHost, "target-host", "", "remote host to dial (initiator only)")
	f.DurationVar(&createHeartbeat, "heartbeat-interval", 30*time.Second, "proposed heartbeat interval")
	_ = sessionCreateCmd.MarkFlagRequired("sender-comp-id")
	_ = sessionCreateCmd.MarkFlagRequired("target-comp-id")
	_ = sessionCreateCmd.MarkFlagRequired("port")
}

var sessionConnectCmd = &cobra.Command{
	Use:   "connect <session-id>",
	Short: "Connect (dial) an initiator session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		if err := e.Connect(args[0]); err != nil {
			return err
		}
		cmd.Println("connect initiated")
		return nil
	},
}

var sessionDisconnectCmd = &cobra.Command{
	Use:   "disconnect <session-id> [reason]",
	Short: "Forcibly disconnect a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		reason := "admin disconnect"
		if len(args) > 1 {
			reason = args[1]
		}
		if err := e.Disconnect(args[0], reason); err != nil {
			return err
		}
		cmd.Println("disconnected")
		return nil
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout <session-id> [reason]",
	Short: "Cooperatively log out a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		reason := "admin logout"
		if len(args) > 1 {
			reason = args[1]
		}
		if err := e.Logout(args[0], reason); err != nil {
			return err
		}
		cmd.Println("logout initiated")
		return nil
	},
}

var sessionSetSeqCmd = &cobra.Command{
	Use:   "set-seq <session-id> <outgoing|incoming> <n>",
	Short: "Force a session's outgoing or expected-incoming sequence number",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var n int64
		if _, err := fmt.Sscanf(args[2], "%d", &n); err != nil {
			return fmt.Errorf("invalid sequence number %q: %w", args[2], err)
		}

		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()

		switch args[1] {
		case "outgoing":
			err = e.SetOutgoingSeqNum(args[0], n)
		case "incoming":
			err = e.SetExpectedIncomingSeqNum(args[0], n)
		default:
			return fmt.Errorf("second argument must be %q or %q, got %q", "outgoing", "incoming", args[1])
		}
		if err != nil {
			return err
		}
		cmd.Println("sequence number updated")
		return nil
	},
}

var sessionResetSeqCmd = &cobra.Command{
	Use:   "reset-seq <session-id>",
	Short: "Reset both sequence numbers to 1 (manual EOD reset)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		if err := e.ResetSequenceNumbers(args[0]); err != nil {
			return err
		}
		cmd.Println("sequence numbers reset")
		return nil
	},
}

var sessionTriggerEodCmd = &cobra.Command{
	Use:   "trigger-eod <session-id>",
	Short: "Trigger an end-of-day sequence reset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		if err := e.TriggerEod(args[0]); err != nil {
			return err
		}
		cmd.Println("EOD reset triggered")
		return nil
	},
}

var sessionTestRequestCmd = &cobra.Command{
	Use:   "test-request <session-id>",
	Short: "Send a TestRequest and print its TestReqID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadExisting(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Stop()
		reqID, err := e.SendTestRequest(args[0])
		if err != nil {
			return err
		}
		cmd.Println(reqID)
		return nil
	},
}

var sessionListOutput string

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions known to the durable registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := newEngine()
		if err != nil {
			return err
		}
		if cfg.Registry.Backend == "" {
			return fmt.Errorf("no registry configured: nothing to list beyond config.sessions")
		}

		reg, err := registry.Open(cfg.Registry)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer func() { _ = reg.Close() }()

		recs, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}

		format, err := output.ParseFormat(sessionListOutput)
		if err != nil {
			return err
		}
		return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(sessionTable(recs))
	},
}

func init() {
	sessionListCmd.Flags().StringVarP(&sessionListOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type sessionTable []registry.SessionRecord

func (t sessionTable) Headers() []string {
	return []string{"SESSION ID", "ROLE", "PORT", "OUTGOING SEQ", "EXPECTED INCOMING", "UPDATED"}
}

func (t sessionTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, rec := range t {
		rows = append(rows, []string{
			rec.SessionID,
			rec.Config.ConnectionType,
			fmt.Sprintf("%d", rec.Config.Port),
			fmt.Sprintf("%d", rec.Checkpoint.OutgoingSeq),
			fmt.Sprintf("%d", rec.Checkpoint.ExpectedIncomingSeq),
			rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	return rows
}
