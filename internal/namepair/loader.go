package namepair

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/fetcher"
	"github.com/sells-group/university-cli/internal/model"
)

// Source names reported by Loader.Load.
const (
	SourceRemote = "remote"
	SourceJSON   = "json"
)

// Opener resolves a location (URL or path) to a reader.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Loader loads name pairs from the remote sheet, falling back to the local
// JSON mapping when the sheet is unset, unreachable or yields no pairs.
type Loader struct {
	Opener    Opener
	RemoteURL string
	JSONPath  string
}

// Load returns the pairs and the name of the source they came from.
func (l *Loader) Load(ctx context.Context) ([]model.NamePair, string, error) {
	var remoteErr error
	if l.RemoteURL != "" {
		pairs, err := l.loadRemote(ctx)
		switch {
		case err == nil && len(pairs) > 0:
			zap.L().Info("namepair: loaded remote source",
				zap.String("url", l.RemoteURL), zap.Int("pairs", len(pairs)))
			return pairs, SourceRemote, nil
		case err == nil:
			remoteErr = eris.Errorf("namepair: %s has no name pairs", l.RemoteURL)
		default:
			remoteErr = err
		}
		if ctx.Err() != nil {
			return nil, "", eris.Wrap(ctx.Err(), "namepair: load")
		}
		zap.L().Warn("namepair: remote source unavailable, trying local json",
			zap.String("url", l.RemoteURL), zap.Error(remoteErr))
	}

	if l.JSONPath == "" {
		if remoteErr != nil {
			return nil, "", eris.Wrapf(ErrNoSource, "remote: %v", remoteErr)
		}
		return nil, "", ErrNoSource
	}

	pairs, err := l.loadJSON(ctx)
	if err != nil {
		return nil, "", eris.Wrapf(ErrNoSource, "json %s: %v", l.JSONPath, err)
	}
	zap.L().Info("namepair: loaded local json",
		zap.String("path", l.JSONPath), zap.Int("pairs", len(pairs)))
	return pairs, SourceJSON, nil
}

func (l *Loader) loadRemote(ctx context.Context) ([]model.NamePair, error) {
	rc, err := l.Opener.Open(ctx, l.RemoteURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	if fetcher.Ext(l.RemoteURL) == ".xlsx" {
		return ParseXLSX(rc)
	}
	return ParseCSV(ctx, rc)
}

func (l *Loader) loadJSON(ctx context.Context) ([]model.NamePair, error) {
	rc, err := l.Opener.Open(ctx, l.JSONPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return ParseJSON(rc)
}
