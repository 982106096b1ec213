// Package lockctl is the operator CLI for the locks service.
package lockctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"eventmarket/pkg/client"
	"eventmarket/pkg/model"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyURL    = "url"
	keyActor  = "actor"
	keyRole   = "role"
	keyOutput = "output"

	outputTable = "table"
	outputJSON  = "json"
)

// Execute runs the CLI and cancels the command context on SIGINT or SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand(viper.New(), os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	v   *viper.Viper
	out io.Writer

	newClient func(baseURL string) lockAPI
}

// lockAPI is the part of client.LockClient the commands use.
type lockAPI interface {
	Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error)
	Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error)
	Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error
	Status(ctx context.Context, actor model.Actor, key model.ResourceKey) (*model.LockStatus, error)
	Wait(ctx context.Context, actor model.Actor, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error)
	ForceRelease(ctx context.Context, actor model.Actor, key model.ResourceKey, reason string) (*model.ForceReleaseResult, error)
	Purge(ctx context.Context, actor model.Actor) (*model.PurgeResult, error)
	List(ctx context.Context, actor model.Actor, resourceType model.ResourceType, limit int, offset int64) ([]*model.LockStatus, int64, error)
}

func NewRootCommand(v *viper.Viper, out io.Writer) *cobra.Command {
	return newRootCommand(v, out, func(baseURL string) lockAPI { return client.NewLockClient(baseURL) })
}

func newRootCommand(v *viper.Viper, out io.Writer, newClient func(baseURL string) lockAPI) *cobra.Command {
	c := &cli{v: v, out: out, newClient: newClient}

	var cfgFile string
	root := &cobra.Command{
		Use:   "lockctl",
		Short: "Inspect and manage resource locks",
		Long: `lockctl talks to the locks service over HTTP.

Settings come from flags, LOCKCTL_* environment variables, or
$HOME/.eventmarket/lockctl.yaml, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig(cfgFile)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.eventmarket/lockctl.yaml)")
	flags.String(keyURL, "http://localhost:8080", "locks service base URL")
	flags.String(keyActor, "", "actor id sent as "+client.HeaderActorID)
	flags.String(keyRole, model.RoleAdmin, "actor role sent as "+client.HeaderActorRole)
	flags.StringP(keyOutput, "o", outputTable, "output format: table or json")
	for _, name := range []string{keyURL, keyActor, keyRole, keyOutput} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		c.statusCommand(),
		c.waitCommand(),
		c.listCommand(),
		c.forceReleaseCommand(),
		c.purgeCommand(),
		c.holdCommand(),
	)
	return root
}

func (c *cli) initConfig(cfgFile string) error {
	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		c.v.AddConfigPath(filepath.Join(home, ".eventmarket"))
		c.v.SetConfigType("yaml")
		c.v.SetConfigName("lockctl")
	}

	c.v.SetEnvPrefix("LOCKCTL")
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	switch c.v.GetString(keyOutput) {
	case outputTable, outputJSON:
	default:
		return fmt.Errorf("unknown output format %q", c.v.GetString(keyOutput))
	}
	return nil
}

func (c *cli) actor() (model.Actor, error) {
	actor := model.Actor{
		ID:   strings.TrimSpace(c.v.GetString(keyActor)),
		Role: strings.ToLower(strings.TrimSpace(c.v.GetString(keyRole))),
	}
	if actor.ID == "" {
		return actor, fmt.Errorf("an actor id is required (--actor or LOCKCTL_ACTOR)")
	}
	return actor, nil
}

func (c *cli) client() lockAPI {
	return c.newClient(strings.TrimRight(c.v.GetString(keyURL), "/"))
}

func (c *cli) json() bool {
	return c.v.GetString(keyOutput) == outputJSON
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseKey(args []string) (model.ResourceKey, error) {
	key := model.NewResourceKey(model.ResourceType(args[0]), args[1])
	if !key.Type.Valid() {
		return key, fmt.Errorf("unknown resource type %q", args[0])
	}
	return key, nil
}
