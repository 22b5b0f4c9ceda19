package call

import (
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/media"
)

// Renders the call into the log. Used by the command line peer.
type LogRenderer struct {
	logger *logrus.Entry
}

func NewLogRenderer(logger *logrus.Entry) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) RenderLocal(tracks []media.Track) {
	kinds := make([]media.Kind, 0, len(tracks))
	for _, track := range tracks {
		kinds = append(kinds, track.Kind())
	}

	r.logger.WithField("tracks", kinds).Info("local preview")
}

func (r *LogRenderer) RenderRemote(track RemoteTrack) {
	r.logger.WithFields(logrus.Fields{
		"track":  track.ID,
		"stream": track.StreamID,
		"kind":   track.Kind,
		"codec":  track.Codec,
	}).Info("remote track started")
}

func (r *LogRenderer) RemoteGone(track RemoteTrack) {
	r.logger.WithFields(logrus.Fields{
		"track":    track.ID,
		"kind":     track.Kind,
		"packets":  track.Packets,
		"sequence": track.LastSequence,
	}).Info("remote track gone")
}

func (r *LogRenderer) Failure(err error) {
	r.logger.WithError(err).Warn("call interrupted")
}
