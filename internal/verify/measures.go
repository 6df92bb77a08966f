package verify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

var errShape = errors.New("verify: images differ in size or are empty")

func validatePair(reference, candidate gocv.Mat) error {
	if reference.Empty() || candidate.Empty() {
		return errShape
	}
	if reference.Rows() != candidate.Rows() || reference.Cols() != candidate.Cols() {
		return fmt.Errorf("%w: %dx%d vs %dx%d", errShape,
			reference.Cols(), reference.Rows(), candidate.Cols(), candidate.Rows())
	}
	return nil
}

func ensureGray(m gocv.Mat) gocv.Mat {
	if m.Channels() == 1 {
		return m
	}
	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	return gray
}

func releaseGray(gray, original gocv.Mat) {
	if gray.Ptr() != original.Ptr() {
		gray.Close()
	}
}

func meanSquaredError(reference, candidate gocv.Mat) (float64, error) {
	if err := validatePair(reference, candidate); err != nil {
		return 0, err
	}
	gray1 := ensureGray(reference)
	defer releaseGray(gray1, reference)
	gray2 := ensureGray(candidate)
	defer releaseGray(gray2, candidate)

	var sum float64
	rows, cols := gray1.Rows(), gray1.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			d := float64(gray1.GetUCharAt(y, x)) - float64(gray2.GetUCharAt(y, x))
			sum += d * d
		}
	}
	return sum / float64(rows*cols), nil
}

// PSNR in decibels over the grayscale rendition. Identical images
// score +Inf.
type PSNR struct{}

func NewPSNR() *PSNR { return &PSNR{} }

func (p *PSNR) Calculate(reference, candidate gocv.Mat) (float64, error) {
	mse, err := meanSquaredError(reference, candidate)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(255.0*255.0/mse), nil
}

func (p *PSNR) GetName() string        { return "PSNR" }
func (p *PSNR) GetDescription() string { return "Peak signal-to-noise ratio in dB" }
func (p *PSNR) GetRange() (float64, float64) {
	return 0, math.Inf(1)
}
func (p *PSNR) IsHigherBetter() bool { return true }

// MSE is the raw mean squared error behind PSNR, reported on its own
// because a plain pixel error count is easier to reason about when a
// parity check fails.
type MSE struct{}

func NewMSE() *MSE { return &MSE{} }

func (m *MSE) Calculate(reference, candidate gocv.Mat) (float64, error) {
	return meanSquaredError(reference, candidate)
}

func (m *MSE) GetName() string        { return "MSE" }
func (m *MSE) GetDescription() string { return "Mean squared error over grayscale pixels" }
func (m *MSE) GetRange() (float64, float64) {
	return 0, 255 * 255
}
func (m *MSE) IsHigherBetter() bool { return false }

// SSIM implements the windowed structural similarity index with the
// standard 11x11 Gaussian window and stabilizing constants.
type SSIM struct{}

func NewSSIM() *SSIM { return &SSIM{} }

const (
	ssimC1 = 6.5025
	ssimC2 = 58.5225
)

func (s *SSIM) Calculate(reference, candidate gocv.Mat) (float64, error) {
	if err := validatePair(reference, candidate); err != nil {
		return 0, err
	}
	gray1 := ensureGray(reference)
	defer releaseGray(gray1, reference)
	gray2 := ensureGray(candidate)
	defer releaseGray(gray2, candidate)

	f1 := gocv.NewMat()
	defer f1.Close()
	gray1.ConvertTo(&f1, gocv.MatTypeCV32F)
	f2 := gocv.NewMat()
	defer f2.Close()
	gray2.ConvertTo(&f2, gocv.MatTypeCV32F)

	win := image.Pt(11, 11)

	mu1 := gocv.NewMat()
	defer mu1.Close()
	gocv.GaussianBlur(f1, &mu1, win, 1.5, 1.5, gocv.BorderDefault)
	mu2 := gocv.NewMat()
	defer mu2.Close()
	gocv.GaussianBlur(f2, &mu2, win, 1.5, 1.5, gocv.BorderDefault)

	mu1Sq := gocv.NewMat()
	defer mu1Sq.Close()
	gocv.Multiply(mu1, mu1, &mu1Sq)
	mu2Sq := gocv.NewMat()
	defer mu2Sq.Close()
	gocv.Multiply(mu2, mu2, &mu2Sq)
	mu1Mu2 := gocv.NewMat()
	defer mu1Mu2.Close()
	gocv.Multiply(mu1, mu2, &mu1Mu2)

	sq1 := gocv.NewMat()
	defer sq1.Close()
	gocv.Multiply(f1, f1, &sq1)
	sigma1Sq := gocv.NewMat()
	defer sigma1Sq.Close()
	gocv.GaussianBlur(sq1, &sigma1Sq, win, 1.5, 1.5, gocv.BorderDefault)
	gocv.Subtract(sigma1Sq, mu1Sq, &sigma1Sq)

	sq2 := gocv.NewMat()
	defer sq2.Close()
	gocv.Multiply(f2, f2, &sq2)
	sigma2Sq := gocv.NewMat()
	defer sigma2Sq.Close()
	gocv.GaussianBlur(sq2, &sigma2Sq, win, 1.5, 1.5, gocv.BorderDefault)
	gocv.Subtract(sigma2Sq, mu2Sq, &sigma2Sq)

	prod := gocv.NewMat()
	defer prod.Close()
	gocv.Multiply(f1, f2, &prod)
	sigma12 := gocv.NewMat()
	defer sigma12.Close()
	gocv.GaussianBlur(prod, &sigma12, win, 1.5, 1.5, gocv.BorderDefault)
	gocv.Subtract(sigma12, mu1Mu2, &sigma12)

	num1 := mu1Mu2.Clone()
	defer num1.Close()
	num1.MultiplyFloat(2)
	num1.AddFloat(ssimC1)
	sigma12.MultiplyFloat(2)
	sigma12.AddFloat(ssimC2)
	num := gocv.NewMat()
	defer num.Close()
	gocv.Multiply(num1, sigma12, &num)

	den1 := gocv.NewMat()
	defer den1.Close()
	gocv.Add(mu1Sq, mu2Sq, &den1)
	den1.AddFloat(ssimC1)
	den2 := gocv.NewMat()
	defer den2.Close()
	gocv.Add(sigma1Sq, sigma2Sq, &den2)
	den2.AddFloat(ssimC2)
	den := gocv.NewMat()
	defer den.Close()
	gocv.Multiply(den1, den2, &den)

	ssimMap := gocv.NewMat()
	defer ssimMap.Close()
	gocv.Divide(num, den, &ssimMap)

	return ssimMap.Mean().Val1, nil
}

func (s *SSIM) GetName() string        { return "SSIM" }
func (s *SSIM) GetDescription() string { return "Structural similarity index over grayscale" }
func (s *SSIM) GetRange() (float64, float64) {
	return 0, 1
}
func (s *SSIM) IsHigherBetter() bool { return true }
