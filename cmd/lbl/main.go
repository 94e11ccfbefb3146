package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/engine"
	"labelline/internal/hub"
	"labelline/internal/migrate"
	"labelline/internal/reaper"
	"labelline/internal/repo"
	"labelline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lbl",
	Short: "Labelline CLI",
	Long: `Labelline coordinates a team labeling a shared pool of assets.
- Assets: images or text snippets waiting for labels; they flow available -> claimed -> completed.
- Claims: exclusive leases so two people never label the same asset; idle claims are reclaimed automatically.
- Annotations: versioned labels (bounding boxes, polygons, points, text spans) with full edit history.
- Sessions: per-claim work timers feeding the productivity metrics.
- Event log: audit trail of every lifecycle change, view with 'lbl log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LABELLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(annotationCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config %s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace, wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "default", "project id for the new config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := resolveConfig(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("LABELLINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret is required; set auth.jwt_secret or LABELLINE_JWT_SECRET")
			}

			e := engine.New(conn, cfg)
			// The hub must hold a pointer: Notify is assigned after the
			// hub exists, and disconnect-triggered releases have to see it
			// so they broadcast asset_available.
			h := hub.New(&e)
			e.Notify = h

			handler, err := server.New(server.Config{
				Engine:   e,
				Hub:      h,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:     secret,
					TokenTTLHours: cfg.Auth.TokenTTLHours,
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go reaper.New(e).Run(ctx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Labelline API on http://%s%s (stream at %s/stream, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// seedFile is the YAML shape accepted by 'lbl seed'.
type seedFile struct {
	Users []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Role  string `yaml:"role"`
	} `yaml:"users"`
	Assets []struct {
		ID          string   `yaml:"id"`
		Kind        string   `yaml:"kind"`
		URL         string   `yaml:"url"`
		Content     string   `yaml:"content"`
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		Project     string   `yaml:"project"`
		Tags        []string `yaml:"tags"`
		Priority    int      `yaml:"priority"`
	} `yaml:"assets"`
}

func seedCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users and assets from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var seed seedFile
			if err := yaml.Unmarshal(data, &seed); err != nil {
				return fmt.Errorf("invalid seed yaml: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				for _, u := range seed.Users {
					if _, err := e.CreateUser(ctx, u.ID, u.Name, u.Email, u.Role); err != nil {
						return fmt.Errorf("seed user %s: %w", u.Name, err)
					}
				}
				for _, a := range seed.Assets {
					_, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
						ID:          a.ID,
						Kind:        a.Kind,
						URL:         a.URL,
						Content:     a.Content,
						Title:       a.Title,
						Description: a.Description,
						Project:     a.Project,
						Tags:        a.Tags,
						Priority:    a.Priority,
						ActorID:     viper.GetString("actor-id"),
						ActorRole:   "admin",
					})
					if err != nil {
						return fmt.Errorf("seed asset %s: %w", a.Title, err)
					}
				}
				fmt.Printf("Seeded %d user(s) and %d asset(s)\n", len(seed.Users), len(seed.Assets))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to seed YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func assetCmd() *cobra.Command {
	asset := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
		Long:  "Assets are the things being labeled. They flow available -> claimed -> completed; release puts a claimed asset back in the pool.",
	}
	asset.AddCommand(assetCreateCmd())
	asset.AddCommand(assetListCmd())
	asset.AddCommand(assetQueueCmd())
	asset.AddCommand(assetGetCmd())
	asset.AddCommand(assetClaimCmd())
	asset.AddCommand(assetReleaseCmd())
	asset.AddCommand(assetCompleteCmd())
	return asset
}

func assetCreateCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			// The local operator acts as admin.
			opts.ActorRole = "admin"
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.Project == "" {
					opts.Project = viper.GetString("project")
				}
				a, err := e.CreateAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "asset id (optional)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "image", "asset kind (image, text)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "image URL")
	cmd.Flags().StringVar(&opts.Content, "content", "", "text content")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Project, "asset-project", "", "project the asset belongs to")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", []string{}, "tag (repeatable)")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority (higher is picked up first)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.Project == "" {
					f.Project = viper.GetString("project")
				}
				assets, err := e.Repo.ListAssets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Kind", "Status", "Claimed By", "Priority"})
				for _, a := range assets {
					claimedBy := ""
					if a.ClaimedBy != nil {
						claimedBy = *a.ClaimedBy
					}
					tw.AppendRow(table.Row{a.ID, a.Title, a.Kind, a.Status, claimedBy, a.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (available, claimed, completed)")
	cmd.Flags().StringVar(&f.ClaimedBy, "claimed-by", "", "claim holder filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func assetQueueCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the next available assets in pickup order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				assets, err := e.Repo.QueueAssets(ctx, viper.GetString("project"), limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(assets)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func assetGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAsset(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, s, err := e.ClaimAsset(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"asset": a, "session": s})
			})
		},
	}
	return cmd
}

func assetReleaseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Release a claimed asset back to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ReleaseAsset(ctx, args[0], viper.GetString("actor-id"), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release another user's claim")
	return cmd
}

func assetCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a claimed asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CompleteAsset(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func annotationCmd() *cobra.Command {
	ann := &cobra.Command{
		Use:   "annotation",
		Short: "Inspect annotations",
	}
	ann.AddCommand(annotationListCmd())
	ann.AddCommand(annotationHistoryCmd())
	return ann
}

func annotationListCmd() *cobra.Command {
	var f repo.AnnotationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List annotations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAnnotations(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Asset", "Type", "Label", "Version", "By"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.AssetID, a.Type, a.Label, a.Version, a.UserID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AssetID, "asset", "", "asset filter")
	cmd.Flags().StringVar(&f.UserID, "user", "", "author filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "annotation type filter")
	cmd.Flags().StringVar(&f.Label, "label", "", "label filter")
	cmd.Flags().BoolVar(&f.IncludeDeleted, "include-deleted", false, "include soft-deleted annotations")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func annotationHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show an annotation's edit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ann, err := e.GetAnnotation(ctx, args[0], true)
				if err != nil {
					return err
				}
				return printJSONOrTable(ann)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var id, name, email, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, id, name, email, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "annotator", "role (annotator, manager, admin)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Completed", "Annotations"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.TasksCompleted, u.AnnotationsCreated})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"key": key, "secret": secret})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0]); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"revoked": args[0]})
			})
		},
	}
	return cmd
}

func metricsCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "metrics",
		Short: "Productivity and progress metrics",
	}
	m.AddCommand(metricsUserCmd())
	m.AddCommand(metricsDashboardCmd())
	m.AddCommand(metricsProjectCmd())
	return m
}

func metricsUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user <id>",
		Short: "Per-user metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UserMetrics(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func metricsDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Workspace-wide metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.DashboardMetrics(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func metricsProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project <id>",
		Short: "Per-project metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ProjectMetrics(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit trail: asset lifecycle changes, annotation edits, releases, and sweeps.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, viper.GetString("project"), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func resolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		projectID := viper.GetString("project")
		if projectID == "" {
			projectID = "default"
		}
		cfg = config.Default(projectID)
	}
	if override := viper.GetString("project"); override != "" {
		cfg.Project.ID = override
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := resolveConfig(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
