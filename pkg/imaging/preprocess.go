package imaging

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/pkg/models"
)

const channels = 3

// Preprocessor resizes an image to the model's square input and lays it out as a
// [1, 3, size, size] tensor with every value mapped through (p - mean) / scale.
type Preprocessor struct {
	size  int
	bgr   bool
	mean  float32
	scale float32
}

func NewPreprocessor(cfg config.PreprocessingConfig) *Preprocessor {
	return &Preprocessor{
		size:  cfg.Size,
		bgr:   cfg.ChannelOrder == "bgr",
		mean:  cfg.Mean,
		scale: cfg.Scale,
	}
}

// Preprocess is deterministic and safe for concurrent use.
func (p *Preprocessor) Preprocess(img image.Image) (*models.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, models.NewDecodeError("image has no pixels", nil)
	}

	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := p.size * p.size
	data := make([]float32, channels*plane)

	first, third := 0, 2*plane
	if p.bgr {
		first, third = third, first
	}
	green := plane

	for y := 0; y < p.size; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < p.size; x++ {
			px := row[x*4 : x*4+3]
			i := y*p.size + x
			data[first+i] = p.normalize(px[0])
			data[green+i] = p.normalize(px[1])
			data[third+i] = p.normalize(px[2])
		}
	}

	return &models.Tensor{
		Shape: []int{1, channels, p.size, p.size},
		Data:  data,
	}, nil
}

func (p *Preprocessor) normalize(v uint8) float32 {
	return (float32(v) - p.mean) / p.scale
}
