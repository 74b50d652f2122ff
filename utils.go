package rfpose

import (
	"gonum.org/v1/gonum/mat"
	"log"
)

//HandleError converts a non-nil error into a panic.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

//Height returns the number of rows of a dense matrix.
func Height(m *mat.Dense) int {
	h, _ := m.Dims()
	return h
}
