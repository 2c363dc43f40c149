// vault-util inspects and maintains a filesystem-backed snapshot repository:
// listing snapshots, running the verification probe, and deleting snapshots
// by name.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/INLOpen/nexusvault/async"
	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/config"
	"github.com/INLOpen/nexusvault/core"
	"github.com/INLOpen/nexusvault/repository"
)

func main() {
	location := flag.String("location", "", "Base directory of the repository (required)")
	name := flag.String("repository", "default", "Repository name used in errors and logs")
	readOnly := flag.Bool("readonly", false, "Open the repository in read-only mode")
	flag.Parse()

	if *location == "" {
		fmt.Fprintln(os.Stderr, "Error: -location flag is required.")
		flag.Usage()
		os.Exit(1)
	}
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: a command is required: list | verify | delete")
		os.Exit(1)
	}

	settings := &config.Settings{Name: *name, Location: *location, ReadOnly: *readOnly}
	settings.ApplyDefaults()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	repo, err := repository.New(settings, repository.Options{
		CreateStore: func() (blob.Store, error) {
			return blob.NewFSStore(*location, *readOnly)
		},
		Logger: logger,
	})
	if err != nil {
		fatal(err)
	}
	if err := repo.Start(); err != nil {
		fatal(err)
	}
	defer repo.Close()

	switch flag.Arg(0) {
	case "list":
		err = listSnapshots(repo)
	case "verify":
		err = verifyRepository(repo)
	case "delete":
		err = deleteSnapshot(repo, flag.Arg(1))
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		fatal(err)
	}
}

func listSnapshots(repo *repository.Repository) error {
	repoData, err := repo.GetRepositoryData()
	if err != nil {
		return err
	}
	if len(repoData.Snapshots) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tUUID\tSTATE\tINDICES")
	fmt.Fprintln(w, "----\t----\t-----\t-------")
	for _, s := range repoData.Snapshots {
		state := "?"
		if st, ok := repoData.State(s.UUID); ok {
			state = string(st)
		}
		refs := 0
		for _, uuids := range repoData.IndexSnapshots {
			for _, uuid := range uuids {
				if uuid == s.UUID {
					refs++
				}
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Name, s.UUID, state, refs)
	}
	return w.Flush()
}

func verifyRepository(repo *repository.Repository) error {
	seed, err := repo.StartVerification()
	if err != nil {
		return err
	}
	if seed == repository.ReadOnlyVerificationSeed {
		fmt.Println("Repository is read-only; catalog pointer is readable.")
		return nil
	}
	if err := repo.VerifyNode(seed, "vault-util"); err != nil {
		return err
	}
	if err := repo.EndVerification(seed); err != nil {
		return err
	}
	fmt.Println("Repository verification succeeded.")
	return nil
}

func deleteSnapshot(repo *repository.Repository, name string) error {
	if name == "" {
		return fmt.Errorf("delete requires a snapshot name")
	}
	repoData, err := repo.GetRepositoryData()
	if err != nil {
		return err
	}
	snapshotID, ok := repoData.FindByName(name)
	if !ok {
		return fmt.Errorf("snapshot %q not found", name)
	}

	done := make(chan error, 1)
	repo.DeleteSnapshot(context.Background(), snapshotID, repoData.Generation, async.ListenerFuncs[struct{}]{
		Response: func(struct{}) { done <- nil },
		Failure:  func(err error) { done <- err },
	})
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timed out deleting snapshot %q", name)
	}
	fmt.Printf("Deleted snapshot %s (%s).\n", snapshotID.Name, snapshotID.UUID)
	return nil
}

func fatal(err error) {
	if core.IsReadOnly(err) {
		fmt.Fprintf(os.Stderr, "Error: %v (open without -readonly to modify)\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
