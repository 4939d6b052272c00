// Command jackxml renders the structural parse tree of Jack source
// files as XML, in the format produced by the Nand2Tetris course's
// own Project 10 analyzer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/libklein/n2t-toolchain/internal/clilog"
	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/jack"
	"github.com/libklein/n2t-toolchain/internal/jacklex"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func collectJackFiles(fileOrDir string) ([]string, error) {
	info, err := os.Stat(fileOrDir)
	if err != nil {
		return nil, &diag.IOError{Path: fileOrDir, Err: err}
	}
	if !info.IsDir() {
		return []string{fileOrDir}, nil
	}

	entries, err := os.ReadDir(fileOrDir)
	if err != nil {
		return nil, &diag.IOError{Path: fileOrDir, Err: err}
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jack" {
			continue
		}
		files = append(files, filepath.Join(fileOrDir, entry.Name()))
	}
	return files, nil
}

func outputPath(jackPath string) string {
	ext := filepath.Ext(jackPath)
	return jackPath[:len(jackPath)-len(ext)] + ".xml"
}

func analyzeFile(path string) (err error) {
	in, openErr := os.Open(path)
	if openErr != nil {
		return &diag.IOError{Path: path, Err: openErr}
	}
	defer in.Close()

	out, createErr := os.Create(outputPath(path))
	if createErr != nil {
		return &diag.IOError{Path: outputPath(path), Err: createErr}
	}
	defer out.Close()

	defer func() {
		if r := recover(); r != nil {
			if analyzeErr, ok := r.(error); ok {
				err = analyzeErr
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	tok := jacklex.New(in)
	analyzer := jack.NewAnalyzer(tok, out)
	analyzer.Analyze()
	return nil
}

func run(c *cli.Context) error {
	log := clilog.New(c.Bool("verbose"))
	defer log.Sync()

	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: jackxml <file.jack|directory>", 1)
	}

	files, err := collectJackFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return cli.Exit(fmt.Sprintf("no .jack files found under %q", path), 1)
	}

	failed := 0
	for _, f := range files {
		log.Info("analyzing", zap.String("file", f))
		if err := analyzeFile(f); err != nil {
			log.Error("analyze failed", zap.String("file", f), zap.Error(err))
			failed++
			continue
		}
		log.Info("wrote", zap.String("file", outputPath(f)))
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d file(s) failed to analyze", failed), 1)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:      "jackxml",
		Usage:     "render Jack source as an XML parse tree",
		ArgsUsage: "<file.jack|directory>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
