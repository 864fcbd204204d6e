package commands

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/auth"
	"github.com/conduit-lang/propsheet/internal/catalog"
	"github.com/conduit-lang/propsheet/internal/cli/config"
	"github.com/conduit-lang/propsheet/internal/cli/ui"
	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/edit"
	"github.com/conduit-lang/propsheet/internal/property"
	"github.com/conduit-lang/propsheet/internal/source"
)

// sheet is an opened sample object with its property source and editor
type sheet struct {
	sample  string
	src     *source.PropertySource
	history *command.History
	editor  *edit.Editor
	pool    *source.Pool
	tree    *property.Tree
}

type sheetOptions struct {
	probe         time.Duration
	showExpensive bool
}

// openSheet builds a fresh instance of sample and the machinery to view and
// edit it
func openSheet(sample string, cfg *config.Config, opts sheetOptions, logger *zap.Logger) (*sheet, error) {
	cat := catalog.New(opts.probe)
	target, err := cat.New(sample)
	if errors.Is(err, catalog.ErrUnknownSample) {
		return nil, fmt.Errorf("%s", ui.UnknownSampleError(sample, cat.Names(), noColorFlag))
	}
	if err != nil {
		return nil, err
	}

	filter := property.And(property.Visible(), property.ShowExpensive(opts.showExpensive))
	descriptors := property.NewExtractor(property.WithLogger(logger)).Extract(target, filter)

	pool := source.NewPool(4, logger)
	pool.Start()
	src := source.New(target, descriptors, source.WithRunner(pool), source.WithLogger(logger))

	history := command.NewHistory(
		command.WithMaxDepth(cfg.Commands.MaxDepth),
		command.WithLogger(logger),
	)
	editor := edit.New(src, history,
		edit.WithAuthorizer(auth.ReadOnlyPolicy),
		edit.WithDefaulter(catalog.Defaults{}),
		edit.WithLogger(logger),
		edit.WithNotifier(edit.NotifierFunc(func(_ interface{}, d *property.Descriptor) {
			logger.Debug("attribute changed", zap.String("attribute", d.ID))
		})),
	)

	return &sheet{
		sample:  sample,
		src:     src,
		history: history,
		editor:  editor,
		pool:    pool,
		tree:    property.BuildTree(descriptors, cfg.Properties.CollapseSingleRoot),
	}, nil
}

// attribute looks up an attribute by id, reporting close matches on failure
func (s *sheet) attribute(id string) (*property.Descriptor, error) {
	if d := property.Find(s.src.Descriptors(), id); d != nil {
		return d, nil
	}
	var ids []string
	for _, d := range property.Flatten(s.src.Descriptors()) {
		ids = append(ids, d.ID)
	}
	return nil, fmt.Errorf("%s", ui.UnknownAttributeError(id, s.sample, ids, noColorFlag))
}

// requestAll starts loading every lazy attribute
func (s *sheet) requestAll() {
	for _, d := range property.Flatten(s.src.Descriptors()) {
		s.src.Read(d)
	}
}

// value renders the current value of d
func (s *sheet) value(d *property.Descriptor) string {
	return property.FormatValue(s.src.Value(d))
}

// Close cancels outstanding loads and stops the worker pool
func (s *sheet) Close() {
	s.src.Close()
	s.pool.Shutdown()
}
