package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestGrayMat_RoundTrip(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(x*30 + y)})
		}
	}

	mat, err := GrayMat(src)
	if err != nil {
		t.Fatalf("GrayMat failed: %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 5 || mat.Cols() != 7 || mat.Channels() != 1 {
		t.Fatalf("mat shape: %dx%dx%d", mat.Rows(), mat.Cols(), mat.Channels())
	}

	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			if got, want := mat.GetUCharAt(y, x), src.GrayAt(x, y).Y; got != want {
				t.Fatalf("pixel (%d,%d): got %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestGrayMat_Empty(t *testing.T) {
	mat, err := GrayMat(image.NewGray(image.Rect(0, 0, 0, 0)))
	defer mat.Close()
	if err == nil {
		t.Error("expected error for empty image")
	}
}

func TestBGRMat(t *testing.T) {
	img := createInMemoryImage(3, 2, color.RGBA{10, 20, 30, 255})
	mat, err := BGRMat(img)
	if err != nil {
		t.Fatalf("BGRMat failed: %v", err)
	}
	defer mat.Close()

	if mat.Channels() != 3 {
		t.Fatalf("channels: got %d, want 3", mat.Channels())
	}
	if b, g, r := mat.GetUCharAt(1, 3), mat.GetUCharAt(1, 4), mat.GetUCharAt(1, 5); b != 30 || g != 20 || r != 10 {
		t.Errorf("pixel (1,1) BGR: got (%d,%d,%d), want (30,20,10)", b, g, r)
	}
}

func TestBGRMat_OffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 9, 8))
	for y := 5; y < 8; y++ {
		for x := 5; x < 9; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 200, 255})
		}
	}
	mat, err := BGRMat(img)
	if err != nil {
		t.Fatalf("BGRMat failed: %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 3 || mat.Cols() != 4 || mat.Channels() != 3 {
		t.Fatalf("mat shape: %dx%dx%d", mat.Rows(), mat.Cols(), mat.Channels())
	}
	// Mat (0,0) is image (5,5); Mat (2,3) is image (8,7)
	if b, g, r := mat.GetUCharAt(0, 0), mat.GetUCharAt(0, 1), mat.GetUCharAt(0, 2); b != 200 || g != 50 || r != 50 {
		t.Errorf("pixel (0,0) BGR: got (%d,%d,%d), want (200,50,50)", b, g, r)
	}
	if b, g, r := mat.GetUCharAt(2, 9), mat.GetUCharAt(2, 10), mat.GetUCharAt(2, 11); b != 200 || g != 70 || r != 80 {
		t.Errorf("pixel (2,3) BGR: got (%d,%d,%d), want (200,70,80)", b, g, r)
	}
}
