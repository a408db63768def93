package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/MeKo-Tech/shipscan/internal/benchmark"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		sizes      = flag.IntSlice("sizes", []int{256, 512, 1024, 2048}, "square scene sizes in pixels")
		workers    = flag.Int("workers", runtime.NumCPU(), "raster workers for the pooled runs")
		iterations = flag.Int("iterations", 3, "iterations per size and worker count")
		ships      = flag.Int("ships", 12, "ships per 512x512 pixels")
		seed       = flag.Int64("seed", 1, "scene seed")
		outputFile = flag.String("output", "", "write results as CSV to this file")
	)
	flag.Parse()

	fmt.Println("shipscan worker scaling benchmark")
	fmt.Println("=================================")

	b := benchmark.NewWorkerScaling(*sizes)
	b.Workers = *workers
	b.Iterations = *iterations
	b.Scene.Ships = *ships
	b.Scene.Seed = *seed

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Running %d iterations per size...\n\n", *iterations)
	if _, err := b.Run(ctx); err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	b.WriteReport(os.Stdout)

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, b); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("\nResults saved to: %s\n", *outputFile)
		}
	}
}

func saveResultsToFile(filename string, b *benchmark.WorkerScaling) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := b.WriteCSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
