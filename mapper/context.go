package mapper

import (
	"errors"
	"io"

	"github.com/notargets/DGMapper/comm"
	"github.com/notargets/DGMapper/config"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDimensionMismatch is returned when a field's components do not
	// match its type in the mapper's spatial dimension
	ErrDimensionMismatch = errors.New("field dimension mismatch")

	// ErrStaleMatrix is returned when a matrix from an earlier setup epoch
	// is applied
	ErrStaleMatrix = errors.New("mapping matrix is stale")
)

// Context is passed explicitly into every search and assembly call
type Context struct {
	Comm     comm.Communicator
	Settings config.Settings
	Logger   logrus.FieldLogger
}

func (mc Context) logger() logrus.FieldLogger {
	if mc.Logger == nil {
		return logrus.StandardLogger()
	}
	return mc.Logger
}

// searchLogger drops the per query warnings below echo level 2
func (mc Context) searchLogger() logrus.FieldLogger {
	if mc.Settings.EchoLevel >= 2 {
		return mc.logger()
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	quiet.SetLevel(logrus.ErrorLevel)
	return quiet
}
