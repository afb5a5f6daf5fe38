package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/archive"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/framestore"
	"github.com/fiapx/fiapx-dataset-service/internal/usecase"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func (p *prep) sources(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	files, err := usecase.NewSourceResolver(p.log).FindVideoFiles(dir)
	if err != nil {
		return fail(err)
	}
	if len(files) == 0 {
		fmt.Fprintf(p.stdout, "no video files in %s\n", dir)
		return nil
	}
	for i, f := range files {
		fmt.Fprintf(p.stdout, "%3d  %s\n", i+1, f)
	}
	return nil
}

func extractPolicy(cmd *cli.Command) entity.ExtractionPolicy {
	return entity.ExtractionPolicy{
		Interval:       cmd.Int("interval"),
		MaxFrames:      cmd.Int("max-frames"),
		CapFileSources: cmd.Bool("cap-files"),
	}
}

func (p *prep) extract(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit("extract needs exactly one video reference", exitUsage)
	}
	if _, err := p.runExtract(ctx, cmd.Args().First(), extractPolicy(cmd), cmd.String("out")); err != nil {
		return fail(err)
	}
	return nil
}

func (p *prep) runExtract(ctx context.Context, ref string, policy entity.ExtractionPolicy, out string) (*entity.ExtractionResult, error) {
	src, err := usecase.NewSourceResolver(p.log).Resolve(ref)
	if err != nil {
		return nil, err
	}
	store, err := framestore.NewStore(p.cfg.FramePrefix, p.cfg.FrameFormat, p.cfg.JPEGQuality)
	if err != nil {
		return nil, entity.WrapStage(entity.StageExtract, err)
	}
	opener := ffmpeg.NewOpener(ffmpeg.Options{
		FFmpegBin:     p.cfg.FFmpegBin,
		FFprobeBin:    p.cfg.FFprobeBin,
		DeviceInput:   p.cfg.FFmpegDeviceInput,
		DevicePath:    p.cfg.FFmpegDevicePath,
		RTSPTransport: p.cfg.FFmpegRTSPTrans,
	}, p.log)

	res, err := usecase.NewFrameExtractor(opener, store, p.log).Extract(ctx, src, policy, out)
	if res != nil {
		state := string(res.StopReason)
		if err != nil {
			state = "failed"
		}
		fmt.Fprintf(p.stdout, "saved %d frames from %s to %s (%s)\n", res.FrameCount, src, out, state)
	}
	return res, err
}

func (p *prep) reconcile(_ context.Context, cmd *cli.Command) error {
	report, err := usecase.NewLabelReconciler(p.log).Reconcile(cmd.String("dir"))
	if err != nil {
		return fail(err)
	}
	p.printReport(report)
	return nil
}

func (p *prep) printReport(r *entity.ReconciliationReport) {
	fmt.Fprintf(p.stdout, "%s: %d images, %d labels, %d complete pairs\n",
		r.Directory, r.ImageCount, r.LabelCount, len(r.CompletePairs()))
	printList(p.stdout, "images without labels", r.UnmatchedImages)
	printList(p.stdout, "labels without images", r.UnmatchedLabels)
	printList(p.stdout, "stems with several images or labels", r.AmbiguousStems)
}

func (p *prep) classesUsage(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Present() {
		return cli.Exit(fmt.Sprintf("unknown classes subcommand %q", cmd.Args().First()), exitUsage)
	}
	return cli.Exit("classes needs a subcommand: show, set or discover", exitUsage)
}

func (p *prep) showClasses(context.Context, *cli.Command) error {
	list, err := usecase.NewClassRegistry(p.cfg.ClassesFile, p.log).Load(p.cfg.ClassesFile)
	if err != nil {
		return fail(err)
	}
	p.printClasses(list)
	return nil
}

func (p *prep) setClasses(_ context.Context, cmd *cli.Command) error {
	registry := usecase.NewClassRegistry(p.cfg.ClassesFile, p.log)
	if err := registry.Set(cmd.Args().Slice()); err != nil {
		return fail(err)
	}
	path, err := registry.Save()
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(p.stdout, "saved %d classes to %s\n", registry.Classes().Len(), path)
	return nil
}

func (p *prep) discoverClasses(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	list, err := p.adoptClasses(usecase.NewClassRegistry(p.cfg.ClassesFile, p.log), dir)
	if err != nil {
		p.hintClassCount(dir, err)
		return fail(err)
	}
	p.printClasses(list)
	return nil
}

// adoptClasses discovers the class list for dir and persists it to the
// registry file when it came from somewhere else.
func (p *prep) adoptClasses(registry *usecase.ClassRegistry, dir string) (entity.ClassList, error) {
	list, from, err := registry.Discover(dir)
	if err != nil {
		return nil, err
	}
	if err := registry.Set(list); err != nil {
		return nil, err
	}
	if filepath.Clean(from) != filepath.Clean(registry.Path()) {
		if _, err := registry.Save(); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(p.stdout, "classes from %s\n", from)
	return list, nil
}

// hintClassCount tells the user how many names the labels need when no
// class list could be found.
func (p *prep) hintClassCount(dir string, err error) {
	var notFound *entity.ClassFileNotFoundError
	if !errors.As(err, &notFound) {
		return
	}
	n, ierr := usecase.InferClassCount(dir)
	if ierr != nil || n == 0 {
		return
	}
	fmt.Fprintf(p.stdout, "labels in %s use class ids 0-%d; name all %d classes with: datasetprep classes set <name>...\n",
		dir, n-1, n)
}

func (p *prep) configure(_ context.Context, cmd *cli.Command) error {
	list, err := p.currentClasses(cmd.String("dir"))
	if err != nil {
		return fail(err)
	}
	if err := p.writeConfig(list); err != nil {
		return fail(err)
	}
	return nil
}

// currentClasses prefers the saved registry and falls back to discovery.
func (p *prep) currentClasses(dir string) (entity.ClassList, error) {
	registry := usecase.NewClassRegistry(p.cfg.ClassesFile, p.log)
	list, err := registry.Load(p.cfg.ClassesFile)
	var notFound *entity.ClassFileNotFoundError
	if errors.As(err, &notFound) {
		return p.adoptClasses(registry, dir)
	}
	return list, err
}

func (p *prep) writeConfig(list entity.ClassList) error {
	artifacts, err := usecase.NewConfigWriter(usecase.ConfigPaths{
		Names:    p.cfg.NamesPath(),
		Template: p.cfg.TemplatePath(),
		Output:   p.cfg.ConfigPath(),
	}, p.log).Write(list)
	if err != nil {
		return err
	}

	a := artifacts.Params
	fmt.Fprintf(p.stdout, "classes=%d filters=%d max_batches=%d steps=%d,%d\n",
		a.Classes, a.Filters, a.MaxBatches, a.Step1, a.Step2)
	fmt.Fprintf(p.stdout, "wrote %s\n", artifacts.NamesPath)
	if artifacts.FullConfig() {
		fmt.Fprintf(p.stdout, "wrote %s\n", artifacts.ConfigPath)
	} else {
		fmt.Fprintf(p.stdout, "template %s not found, model config not written\n", p.cfg.TemplatePath())
	}
	return nil
}

func (p *prep) pkg(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")

	classCount := 0
	if cmd.Bool("validate") {
		list, err := p.currentClasses(dir)
		var notFound *entity.ClassFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			p.log.Warn("no class list found, label class ids are not validated", zap.String("dir", dir))
		case err != nil:
			return fail(err)
		}
		classCount = list.Len()
	}

	if err := p.runPackage(ctx, cmd, dir, classCount); err != nil {
		return fail(err)
	}
	return nil
}

func (p *prep) runPackage(ctx context.Context, cmd *cli.Command, dir string, classCount int) error {
	packager := usecase.NewDatasetPackager(usecase.NewLabelReconciler(p.log), archive.NewZipCreator(), p.log,
		usecase.PackagerConfig{
			StagingDir:  cmd.String("staging"),
			ArchivePath: cmd.String("archive"),
			ClassCount:  classCount,
		})

	result, err := packager.Package(ctx, dir)
	if err != nil {
		return err
	}
	p.printReport(result.Report)
	fmt.Fprintf(p.stdout, "packaged %d pairs into %s\n", len(result.Pairs), result.ArchivePath)
	return nil
}

func (p *prep) prepare(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() > 1 {
		return cli.Exit("prepare takes at most one video reference", exitUsage)
	}
	dir := cmd.String("dir")

	extracted := false
	if cmd.Args().Len() == 1 {
		res, err := p.runExtract(ctx, cmd.Args().First(), extractPolicy(cmd), dir)
		if err != nil {
			return fail(err)
		}
		if res.Interrupted {
			fmt.Fprintln(p.stdout, "interrupted, stopping after extraction")
			return nil
		}
		extracted = true
	}

	list, err := p.adoptClasses(usecase.NewClassRegistry(p.cfg.ClassesFile, p.log), dir)
	var notFound *entity.ClassFileNotFoundError
	if extracted && errors.As(err, &notFound) {
		fmt.Fprintf(p.stdout, "label the frames in %s, then run prepare again without a reference\n", dir)
		return nil
	}
	if err != nil {
		p.hintClassCount(dir, err)
		return fail(err)
	}
	if err := p.writeConfig(list); err != nil {
		return fail(err)
	}

	classCount := 0
	if cmd.Bool("validate") {
		classCount = list.Len()
	}
	err = p.runPackage(ctx, cmd, dir, classCount)
	var noPairs *entity.NoCompletePairsError
	if extracted && errors.As(err, &noPairs) {
		fmt.Fprintf(p.stdout, "no labelled frames yet in %s, label them and run prepare again without a reference\n", dir)
		return nil
	}
	if err != nil {
		return fail(err)
	}
	return nil
}

// fail reports err with its stage. A malformed reference is a usage error.
func fail(err error) error {
	stage, _ := entity.StageOf(err)
	if stage == "" {
		stage = "error"
	}
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var invalid *entity.InvalidSourceError
	if errors.As(err, &invalid) {
		return cli.Exit(msg, exitUsage)
	}
	return cli.Exit(msg, exitFailure)
}

func (p *prep) printClasses(list entity.ClassList) {
	for i, name := range list {
		fmt.Fprintf(p.stdout, "%3d  %s\n", i, name)
	}
}

func printList(w io.Writer, title string, stems []string) {
	if len(stems) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d): %s\n", title, len(stems), strings.Join(stems, ", "))
}
