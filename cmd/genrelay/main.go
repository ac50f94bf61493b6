// Command genrelay runs and drives the generation orchestrator daemon.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/version"
)

// Globals are flags shared by every command.
type Globals struct {
	Config string `help:"Config file to load instead of the default search path." type:"path" short:"c"`
}

// load reads the configuration selected by --config.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

type cli struct {
	Globals

	Start            startCmd            `cmd:"" help:"Start the genrelay daemon."`
	Stop             stopCmd             `cmd:"" help:"Stop the running daemon."`
	Status           statusCmd           `cmd:"" help:"Show daemon status and summary stats."`
	Setup            setupCmd            `cmd:"" help:"Interactive setup wizard."`
	Keys             keysCmd             `cmd:"" help:"Manage provider API keys."`
	Generate         generateCmd         `cmd:"" help:"Run one generation in-process and print the result."`
	Providers        providersCmd        `cmd:"" help:"List providers per task type with credential status."`
	Stats            statsCmd            `cmd:"" help:"Print generation stats from the running daemon."`
	InitConfig       initConfigCmd       `cmd:"" name:"init-config" help:"Generate the default config file."`
	ConfigExport     configExportCmd     `cmd:"" name:"config-export" help:"Export the current config to a TOML file."`
	ConfigImport     configImportCmd     `cmd:"" name:"config-import" help:"Import config from a TOML file."`
	InstallService   installServiceCmd   `cmd:"" name:"install-service" help:"Install as a user service (launchd on macOS, systemd on Linux)."`
	UninstallService uninstallServiceCmd `cmd:"" name:"uninstall-service" help:"Remove the user service."`
	Version          versionCmd          `cmd:"" help:"Print version information."`
}

type versionCmd struct{}

func (versionCmd) Run() error {
	fmt.Println(version.String())
	return nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("genrelay"),
		kong.Description("Failover orchestrator for LLM text generation."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	ctx.FatalIfErrorf(ctx.Run(&c.Globals))
}
