package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQualityFormatExpr(t *testing.T) {
	t.Parallel()

	require.Equal(t, "bestvideo[height<=480]+bestaudio/best[height<=480]", Quality480.FormatExpr())
	require.Equal(t, "bestvideo[height<=2160]+bestaudio/best[height<=2160]", Quality4K.FormatExpr())
	require.Equal(t, "bestvideo+bestaudio/best", QualityBest.FormatExpr())
	// An unset quality falls back to the 720p cap.
	require.Equal(t, Quality720.FormatExpr(), Quality("").FormatExpr())
}

func TestOptionsTransformKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, TransformCompress, Options{}.TransformKind())
	require.Equal(t, TransformGIF, Options{ToGIF: true}.TransformKind())
	require.Equal(t, TransformPassthrough, Options{AudioOnly: true}.TransformKind())
	// GIF wins over audio when both are set.
	require.Equal(t, TransformGIF, Options{ToGIF: true, AudioOnly: true}.TransformKind())
}

func TestOptionsDeliveryMode(t *testing.T) {
	t.Parallel()

	require.Equal(t, DeliverDirect, Options{}.DeliveryMode())
	require.Equal(t, DeliverShareLink, Options{ShareLink: true}.DeliveryMode())
	require.Equal(t, DeliverCloud, Options{CloudUpload: true}.DeliveryMode())
	require.Equal(t, DeliverShareLink, Options{ShareLink: true, CloudUpload: true}.DeliveryMode())
}
