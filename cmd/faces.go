package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Inspect and index stored face descriptors",
}

var facesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check stored descriptors for malformed vectors and duplicates",
	Long: `Stream every stored face descriptor, report descriptors with the wrong
dimension or non-finite values, and report pairs of identities whose
faces fall within the duplicate tolerance.`,
	RunE: runFacesVerify,
}

var facesIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the descriptor HNSW index and save it to disk",
	RunE:  runFacesIndex,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesVerifyCmd)
	facesCmd.AddCommand(facesIndexCmd)

	facesVerifyCmd.Flags().Bool("json", false, "Output as JSON")
	facesVerifyCmd.Flags().Float64("tolerance", 0, "Duplicate tolerance (defaults to FACE_DUPLICATE_TOLERANCE)")
	facesIndexCmd.Flags().String("path", "", "Directory for the index files (defaults to HNSW_INDEX_PATH)")
	facesIndexCmd.Flags().Bool("rebuild", false, "Discard saved graphs and rebuild from the database")
}

// DescriptorIssue is one problem found by faces verify.
type DescriptorIssue struct {
	Role    auth.Role `json:"role"`
	ID      string    `json:"id"`
	Other   string    `json:"other,omitempty"`
	Problem string    `json:"problem"`
}

type storedDescriptor struct {
	role auth.Role
	facematch.Candidate
}

func openIdentities(ctx context.Context) (*config.Config, *postgres.Pool, *postgres.IdentityRepository, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return cfg, pool, postgres.NewIdentityRepository(pool, newLogger(cfg.LogLevel)), nil
}

func runFacesVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput := mustGetBool(cmd, "json")

	cfg, pool, repo, err := openIdentities(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tolerance := mustGetFloat64(cmd, "tolerance")
	if tolerance <= 0 {
		tolerance = cfg.Face.DuplicateTolerance
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Reading descriptors"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	issues := []DescriptorIssue{}
	var valid []storedDescriptor
	for _, role := range []auth.Role{auth.RoleEmployer, auth.RoleEmployee} {
		for c, err := range repo.StreamDescriptors(ctx, role) {
			if err != nil {
				return fmt.Errorf("stream %s descriptors: %w", role, err)
			}
			if bar != nil {
				bar.Add(1)
			}
			if err := facematch.Validate(c.Descriptor, cfg.Face.Dim); err != nil {
				issues = append(issues, DescriptorIssue{Role: role, ID: c.ID, Problem: err.Error()})
				continue
			}
			valid = append(valid, storedDescriptor{role: role, Candidate: c})
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	for i := range valid {
		for j := i + 1; j < len(valid); j++ {
			ok, err := facematch.Verify(valid[i].Descriptor, valid[j].Descriptor, tolerance)
			if err != nil || !ok {
				continue
			}
			issues = append(issues, DescriptorIssue{
				Role:    valid[i].role,
				ID:      valid[i].ID,
				Other:   fmt.Sprintf("%s/%s", valid[j].role, valid[j].ID),
				Problem: "duplicate face",
			})
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	}

	fmt.Printf("Checked %d descriptors, %d issues\n", len(valid)+countMalformed(issues), len(issues))
	for _, issue := range issues {
		if issue.Other != "" {
			fmt.Printf("  %s %s: %s with %s\n", issue.Role, issue.ID, issue.Problem, issue.Other)
		} else {
			fmt.Printf("  %s %s: %s\n", issue.Role, issue.ID, issue.Problem)
		}
	}
	return nil
}

func countMalformed(issues []DescriptorIssue) int {
	n := 0
	for _, issue := range issues {
		if issue.Other == "" {
			n++
		}
	}
	return n
}

func runFacesIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, pool, repo, err := openIdentities(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	path := mustGetString(cmd, "path")
	if path == "" {
		path = cfg.Database.HNSWIndexPath
	}
	if path == "" {
		return fmt.Errorf("an index directory is required (--path or HNSW_INDEX_PATH)")
	}

	if err := repo.EnableHNSW(ctx, path); err != nil {
		return fmt.Errorf("build HNSW index: %w", err)
	}
	if mustGetBool(cmd, "rebuild") {
		if err := repo.RebuildHNSW(ctx); err != nil {
			return fmt.Errorf("rebuild HNSW index: %w", err)
		}
	}
	fmt.Printf("Indexed %d descriptors into %s\n", repo.HNSWCount(), path)
	return nil
}
