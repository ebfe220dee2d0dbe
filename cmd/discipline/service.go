package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/discipline/internal/infra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the daemon for auto-start",
	Long: `Registers 'discipline start' with launchd (macOS) or systemd (Linux).
As root the daemon is installed system-wide, otherwise for the current user.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the daemon from auto-start",
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	if err := paths.Ensure(); err != nil {
		return err
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}

	svc := infra.NewServiceManager(paths)
	fmt.Printf("Execution mode: %s\n", paths.Mode)

	if svc.IsInstalled() && !svc.NeedsUpdate(execPath) {
		fmt.Printf("Already installed (%s)\n", svc.Path())
		return nil
	}
	if err := svc.Install(execPath); err != nil {
		return fmt.Errorf("failed to install %s service: %w", svc.Kind(), err)
	}

	fmt.Printf("Installed %s service: %s\n", svc.Kind(), svc.Path())
	fmt.Printf("Binary: %s\n", execPath)
	fmt.Printf("Data dir: %s\n", paths.DataDir)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	svc := infra.NewServiceManager(resolvePaths())
	if !svc.IsInstalled() {
		fmt.Println("Not installed")
		return nil
	}
	if err := svc.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall %s service: %w", svc.Kind(), err)
	}
	fmt.Printf("Removed %s\n", svc.Path())
	return nil
}
