package recomp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunContext holds the per-run mutable state that the original tool kept
// as module-level globals (Design Notes §9): which symbols are weak
// (need a double pointer indirection through the stub), the alias
// translation table (seeded with `patchmain` -> `main`), and the
// harvested type declarations and resolver output shared by targets.
type RunContext struct {
	Config *Config
	Logger *zap.Logger

	SymbolIndex *SymbolIndex
	Decompiler  Decompiler
	Secondary   SecondaryDecompiler

	WeakFuncs        map[string]bool
	AliasTranslation map[string]string
	TypeDeclarations []*TypeDecl
	ResolverResult   *ResolverResult
}

// NewRunContext builds an empty RunContext ready to have its Symbol Index
// and type declarations populated before RunPipeline is called.
func NewRunContext(cfg *Config, logger *zap.Logger) *RunContext {
	return &RunContext{
		Config:           cfg,
		Logger:           logger,
		WeakFuncs:        map[string]bool{},
		AliasTranslation: map[string]string{"patchmain": "main"},
	}
}

// PipelineResult is the outcome of processing every target in a run.
type PipelineResult struct {
	Succeeded []*TargetRecord
	Failed    []*TargetRecord
}

// maxParallelTargets bounds the errgroup worker pool processing targets
// concurrently; each target's own pipeline stages run sequentially, but
// independent targets don't wait on each other (spec.md §5 Concurrency).
const maxParallelTargets = 8

// RunPipeline drives every target in targetList through the full
// symbol-index -> decompile -> split -> stub -> propagate -> wrapper
// pipeline, bounded to maxParallelTargets concurrent targets via
// golang.org/x/sync/errgroup's SetLimit (the same shape protocompile,
// orizon and jdiag use for exactly this "independent unit of work, bounded
// worker count" concurrency pattern).
func RunPipeline(ctx context.Context, rc *RunContext, targets []*TargetRecord, process func(context.Context, *RunContext, *TargetRecord) error) (*PipelineResult, error) {
	result := &PipelineResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTargets)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			err := process(gctx, rc, target)
			if err != nil {
				if isFatal(err) {
					return err
				}
				rc.Logger.Warn("target failed", zap.String("target", target.Name), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, target := range targets {
		if target.Succeeded() {
			result.Succeeded = append(result.Succeeded, target)
		} else {
			result.Failed = append(result.Failed, target)
		}
	}

	if len(result.Succeeded) == 0 {
		return result, fmt.Errorf("no targets succeeded out of %d attempted", len(targets))
	}
	return result, nil
}

// ProcessTarget runs the full per-target pipeline (spec.md §2/§5): decode
// each function group, split the combined output into sections, parse
// prototypes into FunctionProtos, classify and synthesize stubs, match
// each target function to its decompiled body, rewrite that body's call
// sites, propagate each function's transitive dependency closure
// (spec.md §4.7), and record one DetourMeta per target function ready for
// AssembleTranslationUnit to render. Failures decompiling an individual
// function are recorded against the target rather than aborting it
// (spec.md §7).
func ProcessTarget(ctx context.Context, rc *RunContext, target *TargetRecord) error {
	var mangled []string
	for _, fn := range target.Functions {
		mangled = append(mangled, fn.Mangled)
	}

	source, err := DecompileWithFallback(ctx, rc.Decompiler, rc.Secondary, target.Path, mangled)
	if err != nil {
		for _, fn := range target.Functions {
			target.FailedFunctions = append(target.FailedFunctions, fn.Mangled)
		}
		return DecompilationError{Target: target.Name, Function: target.Name, Reason: err.Error()}
	}
	source = FoldConstAssignments(source)

	sections := SplitSections(source)

	stdio := rc.Config.StringSet("stubs.stdio_collisions")
	variadic := rc.Config.StringSet("stubs.variadic_glibc")
	detourPrefix := rc.Config.GetString("detour.prefix")

	dataSyms := map[string]bool{}
	if rc.SymbolIndex != nil {
		dataSyms = rc.SymbolIndex.DataSymbolNames()
	}

	_, _, ldata := PartitionDataLines(sections.DataLines, dataSyms)
	target.Data = ldata
	dataByName := map[string]*DataDecl{}
	for _, d := range target.Data {
		dataByName[d.Name] = d
	}

	localNames := map[string]bool{}
	for _, fn := range target.Functions {
		localNames[fn.Mangled] = true
	}

	rawProtoLines := DropWeakerDuplicates(sections.Prototypes)
	protos := ParsePrototypeLines(rawProtoLines)
	protos = MergeGuessedPrototypes(protos, sections.GuessedPrototypes)
	protos = EnrichPrototypesWithSymbols(protos, rc.SymbolIndex)

	stubsByName := map[string]*StubEntry{}
	for i := range protos {
		p := &protos[i]
		if localNames[p.Name] {
			// A name appearing in both the external stub region and the
			// decompiled-bodies region is local, not external (spec.md
			// §4.6 tie-break).
			p.IsExternal = false
			continue
		}
		if !p.IsExternal {
			continue
		}
		kind := ClassifyStubKind(*p, stdio, variadic)
		entry := SynthesizeStub(*p, kind, detourPrefix)
		stubsByName[p.Name] = entry
		target.Stubs = append(target.Stubs, entry)
		if kind == StubGlibcEbx {
			target.NeedsEBX = true
		}
	}

	target.LocalBodies = map[string]string{}
	target.FunctionProtos = map[string]FunctionProto{}
	requirements := map[string]FunctionRequirements{}

	for _, fn := range target.Functions {
		body, found := MatchBodyToFunction(sections.Bodies, fn.Mangled)
		if !found {
			target.FailedFunctions = append(target.FailedFunctions, fn.Mangled)
			continue
		}
		requirements[fn.Mangled] = BuildFunctionRequirements(body, stubsByName, localNames, dataByName)
		target.LocalBodies[fn.Mangled] = RewriteCallSites(body, target.Stubs)
		if proto, ok := findProtoByName(protos, fn.Mangled); ok {
			target.FunctionProtos[fn.Mangled] = proto
		}
	}

	if len(target.FailedFunctions) == len(target.Functions) {
		return DecompilationError{Target: target.Name, Function: target.Name, Reason: "no decompiled body matched any target function"}
	}

	for _, fn := range target.Functions {
		if _, ok := target.LocalBodies[fn.Mangled]; !ok {
			continue
		}
		propagated := PropagateDependencies([]string{fn.Mangled}, requirements)
		meta := DetourMeta{
			EntryName: detourEntryName(fn.Mangled, detourPrefix),
			BinSymbol: fn.Mangled,
		}
		for _, name := range propagated.Stubs {
			if s, ok := stubsByName[name]; ok {
				meta.Stubs = append(meta.Stubs, s)
				if s.Kind == StubGlibcEbx {
					meta.NeedsEBX = true
				}
			}
		}
		for _, name := range propagated.Data {
			if d, ok := dataByName[name]; ok {
				meta.Data = append(meta.Data, d)
			}
		}
		meta.CallSpec = meta.EntryName + ":" + strings.Join(propagated.Stubs, ",")
		target.Detours = append(target.Detours, meta)
	}

	return nil
}
