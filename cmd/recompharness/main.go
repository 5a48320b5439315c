package main

import (
	"fmt"
	"os"

	"github.com/prd-tools/recompharness"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile      string
	targetList   string
	outputDir    string
	decompCmd    []string
	verbose      bool
	detourPrefix string
	typedefsPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recompharness",
		Short: "Turn decompiler output into a compilable recompilation harness",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./recompharness.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newResolveTypesCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig bridges a viper-backed config file/env into this pipeline's
// own Config map (config.go), the way the teacher repo threads explicit
// state instead of leaning on package globals.
func loadConfig() (*recomp.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECOMPHARNESS")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("recompharness")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	cfg := recomp.NewConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		if v.IsSet("decompiler.primary_cmd") {
			cfg.SetString("decompiler.primary_cmd", v.GetString("decompiler.primary_cmd"))
		}
		if v.IsSet("detour.prefix") {
			cfg.SetString("detour.prefix", v.GetString("detour.prefix"))
		}
		if v.IsSet("cache.dir") {
			cfg.SetString("cache.dir", v.GetString("cache.dir"))
		}
		if v.IsSet("cache.enabled") {
			cfg.SetBool("cache.enabled", v.GetBool("cache.enabled"))
		}
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every target in a target list and emit a recompilation harness",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := recomp.NewLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if detourPrefix != "" {
				cfg.SetString("detour.prefix", detourPrefix)
			}
			if len(decompCmd) > 0 {
				cfg.SetStringSlice("decompiler.primary_argv", decompCmd)
			}

			if targetList == "" {
				return fmt.Errorf("--targets is required")
			}
			f, err := os.Open(targetList)
			if err != nil {
				return fmt.Errorf("opening target list: %w", err)
			}
			defer f.Close()

			targets, err := recomp.ParseTargetList(f)
			if err != nil {
				return err
			}

			rc := recomp.NewRunContext(cfg, logger)
			rc.Decompiler = recomp.CachingDecompiler{
				Underlying: recomp.ExecDecompiler{Command: append([]string{cfg.GetString("decompiler.primary_cmd")}, decompCmd...)},
				CacheDir:   cfg.GetString("cache.dir"),
				Enabled:    cfg.GetBool("cache.enabled"),
			}

			if typedefsPath != "" {
				decls, resolved, err := harvestAndResolve(typedefsPath, cfg)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", typedefsPath, err)
				}
				rc.TypeDeclarations = decls
				rc.ResolverResult = resolved
			}

			result, err := recomp.RunPipeline(cmd.Context(), rc, targets, recomp.ProcessTarget)
			if err != nil {
				return err
			}

			logger.Info("pipeline finished",
				zap.Int("succeeded", len(result.Succeeded)),
				zap.Int("failed", len(result.Failed)))

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0755); err != nil {
					return err
				}
				for _, t := range result.Succeeded {
					if err := writeTargetArtifacts(outputDir, cfg, rc.ResolverResult, t); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetList, "targets", "", "path to the target list file")
	cmd.Flags().StringVar(&outputDir, "out", "out", "output directory for generated artifacts")
	cmd.Flags().StringSliceVar(&decompCmd, "decompiler-arg", nil, "extra decompiler command-line argument (repeatable)")
	cmd.Flags().StringVar(&detourPrefix, "detour-prefix", "", "override the detour entry function prefix")
	cmd.Flags().StringVar(&typedefsPath, "typedefs", "", "path to a raw typedef dump to resolve and splice into every target's translation unit")
	return cmd
}

// harvestAndResolve loads a raw typedef dump and runs it through the Type
// Harvester and Type Resolver, the same two stages newResolveTypesCmd
// exercises standalone, so `run --typedefs` can feed their output straight
// into AssembleTranslationUnit instead of leaving them reachable only from
// the debug subcommand.
func harvestAndResolve(path string, cfg *recomp.Config) ([]*recomp.TypeDecl, *recomp.ResolverResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	statements, poundDefines, ok := recomp.HarvestTypeDeclarations(string(data))
	if !ok {
		return nil, nil, fmt.Errorf("no typedef dump sentinels found in %s", path)
	}

	var decls []*recomp.TypeDecl
	for _, pd := range poundDefines {
		decls = append(decls, &recomp.TypeDecl{Kind: recomp.KindPoundDefine, Line: pd})
	}
	for _, stmt := range statements {
		if decl, ok := recomp.ParseDeclarationStatement(stmt); ok {
			decls = append(decls, decl)
		}
	}

	result := recomp.ResolveDeclarationOrder(decls, cfg.GetInt("resolver.max_extra_passes"))
	return decls, result, nil
}

// writeTargetArtifacts renders the full `<target>_recomp.c` translation
// unit (body definitions, stubs, and one detour wrapper per target
// function — AssembleTranslationUnit, not a bare EmitWrapper call, since a
// target function's body and its stub/type declarations have to compile
// together) plus the prd_include.mk/prd_info.json pair.
func writeTargetArtifacts(outputDir string, cfg *recomp.Config, resolverResult *recomp.ResolverResult, target *recomp.TargetRecord) error {
	targetDir := outputDir + "/" + target.Name
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}

	source := recomp.AssembleTranslationUnit(target, resolverResult, cfg.GetString("detour.prefix"))
	if err := os.WriteFile(targetDir+"/"+target.Name+"_recomp.c", []byte(source), 0644); err != nil {
		return err
	}

	artifactIn := recomp.ArtifactInput{Target: target.Name, DetourPrefix: cfg.GetString("detour.prefix"), Stubs: target.Stubs}
	mk := recomp.EmitMakefileInclude(artifactIn)
	if err := os.WriteFile(targetDir+"/prd_include.mk", []byte(mk), 0644); err != nil {
		return err
	}

	jsonData, err := recomp.EmitInfoJSON(artifactIn)
	if err != nil {
		return err
	}
	return os.WriteFile(targetDir+"/prd_info.json", jsonData, 0644)
}

func newResolveTypesCmd() *cobra.Command {
	var typedefDumpPath string
	cmd := &cobra.Command{
		Use:   "resolve-types",
		Short: "Harvest and resolve a standalone type dump into ordered C declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typedefDumpPath == "" {
				return fmt.Errorf("--dump is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, result, err := harvestAndResolve(typedefDumpPath, cfg)
			if err != nil {
				return err
			}
			fmt.Println(recomp.RenderDeclarations(result))
			return nil
		},
	}
	cmd.Flags().StringVar(&typedefDumpPath, "dump", "", "path to a raw typedef dump (with START/END sentinels)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// version is overridden at link time via -ldflags.
var version = "dev"
