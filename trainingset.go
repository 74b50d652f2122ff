package rfpose

import (
	"errors"
	"fmt"
	"github.com/sbinet/npyio"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
	"log"
	"os"
)

//PatchStack owns the pixel data of a set of grayscale patches. The patches are
//stored as an n×h×w tensor of 8-bit intensities, one h×w slice per patch.
type PatchStack struct {
	data    *tensor.Dense
	n, h, w int
}

//NewPatchStack wraps a flat row-major sample buffer into a stack of n patches
//of h rows and w columns each.
func NewPatchStack(n, h, w int, raw []uint8) (*PatchStack, error) {
	if n < 1 || h < 1 || w < 1 {
		return nil, fmt.Errorf("patch stack dimensions must be positive, got %d×%d×%d", n, h, w)
	}
	if len(raw) != n*h*w {
		return nil, fmt.Errorf("patch stack of shape %d×%d×%d needs %d samples, got %d", n, h, w, n*h*w, len(raw))
	}
	data := tensor.New(tensor.WithShape(n, h, w), tensor.WithBacking(raw))
	return &PatchStack{data: data, n: n, h: h, w: w}, nil
}

//Len returns the number of patches in the stack.
func (stack *PatchStack) Len() int { return stack.n }

//Width returns the number of pixel columns of every patch.
func (stack *PatchStack) Width() int { return stack.w }

//Height returns the number of pixel rows of every patch.
func (stack *PatchStack) Height() int { return stack.h }

//At returns the intensity of patch i at column x and row y.
func (stack *PatchStack) At(i, x, y int) uint8 {
	value, err := stack.data.At(i, y, x)
	HandleError(err)
	return value.(uint8)
}

//Patch is one training sample: an h×w grid of 8-bit intensities inside a
//PatchStack together with its head pose label.
type Patch struct {
	Stack *PatchStack
	Index int
	Pitch float64
	Yaw   float64
}

//At returns the intensity at column x and row y.
func (p Patch) At(x, y int) uint8 { return p.Stack.At(p.Index, x, y) }

func (p Patch) Width() int { return p.Stack.Width() }

func (p Patch) Height() int { return p.Stack.Height() }

//TrainingSet is a set of labeled patches that share one PatchStack.
type TrainingSet []Patch

//ReadPatches reads a stack of grayscale patches from an npy file. The file must
//hold an n×h×w array of unsigned bytes in C order.
func ReadPatches(fileName string) (*PatchStack, error) {
	log.Print("\ttry to load patches <", fileName, ">")
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open patches: %w", err)
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read patches header: %w", err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("patches must form an n×h×w array, got shape %v", shape)
	}
	if r.Header.Descr.Fortran {
		return nil, errors.New("patches must be stored in C order")
	}

	var raw []uint8
	if err = r.Read(&raw); err != nil {
		return nil, fmt.Errorf("read patches: %w", err)
	}
	return NewPatchStack(shape[0], shape[1], shape[2], raw)
}

//ReadPoses reads pose labels from an npy file. The file must hold an n×2 array
//of floats with a pitch and a yaw column.
func ReadPoses(fileName string) (*mat.Dense, error) {
	log.Print("\ttry to load poses <", fileName, ">")
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open poses: %w", err)
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read poses header: %w", err)
	}

	poses := &mat.Dense{}
	if err = r.Read(poses); err != nil {
		return nil, fmt.Errorf("read poses: %w", err)
	}
	if _, w := poses.Dims(); w != 2 {
		return nil, fmt.Errorf("poses must have a pitch and a yaw column, got width %d", w)
	}
	return poses, nil
}

//LoadTrainingSet reads patches and their pose labels and unites them into one
//TrainingSet. Both files are read concurrently.
func LoadTrainingSet(fileNamePatches, fileNamePoses string) (TrainingSet, error) {
	var (
		stack *PatchStack
		poses *mat.Dense
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		stack, err = ReadPatches(fileNamePatches)
		return err
	})
	g.Go(func() error {
		var err error
		poses, err = ReadPoses(fileNamePoses)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if h := Height(poses); h != stack.Len() {
		return nil, fmt.Errorf("pose count %d does not match patch count %d", h, stack.Len())
	}

	data := make(TrainingSet, stack.Len())
	for p := range data {
		data[p] = Patch{Stack: stack, Index: p, Pitch: poses.At(p, 0), Yaw: poses.At(p, 1)}
	}
	return data, nil
}
