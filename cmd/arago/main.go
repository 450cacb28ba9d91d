// Command arago builds a demo tensor-op DAG and runs both the baseline
// and optimal scheduling paths against it, printing the modeled
// makespan each achieves, replacing the hard-coded driver in
// original_source/optimizer/src/main.rs.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maemowong/arago/dag"
	"github.com/maemowong/arago/kernel"
	"github.com/maemowong/arago/opcode"
	"github.com/maemowong/arago/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var kernelDemo bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "arago",
		Short: "Run the demo tensor-op DAG through both scheduling paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			runDemo(cmd.OutOrStdout())
			if kernelDemo {
				runKernelDemo(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&kernelDemo, "kernel-demo", false, "also run the quantized matmul round-trip example")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "emit device-level debug logging")
	return cmd
}

// demoDag builds the 15-node DAG from original_source's
// optimizer/src/main.rs: a shared input (14) feeding two independent
// reduction trees, one of VScaMul (matrix) ops and one of VMax (scalar)
// ops.
func demoDag() *dag.Dag {
	op := func(o opcode.Opcode) *opcode.Opcode { return &o }
	ops := make([]*opcode.Opcode, 15)
	for i := 0; i <= 6; i++ {
		ops[i] = op(opcode.VScaMul)
	}
	for i := 7; i <= 13; i++ {
		ops[i] = op(opcode.VMax)
	}
	ops[14] = nil

	edges := []dag.Edge{
		{From: 14, To: 0}, {From: 14, To: 1}, {From: 14, To: 2}, {From: 14, To: 3},
		{From: 14, To: 7}, {From: 14, To: 8}, {From: 14, To: 9}, {From: 14, To: 10},
		{From: 0, To: 4}, {From: 1, To: 4}, {From: 2, To: 5}, {From: 3, To: 5},
		{From: 4, To: 6}, {From: 5, To: 6},
		{From: 7, To: 11}, {From: 8, To: 11}, {From: 9, To: 12}, {From: 10, To: 12},
		{From: 11, To: 13}, {From: 12, To: 13},
	}
	return dag.New(ops, edges)
}

func runDemo(out io.Writer) {
	d := demoDag()
	s := scheduler.New(d)

	baseTime, baseOrder := s.BaselineExecute()
	optTime, optOrder := s.OptimalExecute()

	fmt.Fprintf(out, "baseline: time=%d order=%v\n", baseTime, baseOrder)
	fmt.Fprintf(out, "optimal:  time=%d order=%v\n", optTime, optOrder)
	fmt.Fprintf(out, "speedup:  %.2fx\n", float64(baseTime)/float64(optTime))

	logrus.WithFields(logrus.Fields{
		"baseline_time": baseTime,
		"optimal_time":  optTime,
	}).Info("arago: demo schedule complete")
}

func runKernelDemo(out io.Writer) {
	denom := float32(64)
	a := [][]float32{
		{1 / denom, 2 / denom},
		{3 / denom, 4 / denom},
	}
	b := [][]float32{
		{1 / denom, 2 / denom},
		{3 / denom, 4 / denom},
	}
	aT := make([][]float32, len(a[0]))
	for i := range aT {
		aT[i] = make([]float32, len(a))
		for j := range a {
			aT[i][j] = a[j][i]
		}
	}

	res := kernel.MatMul(aT, b)
	fmt.Fprintf(out, "kernel matmul(a^T, b) = %v\n", res)
}
