// Command jackc compiles Jack source files directly to VM code: no
// intermediate syntax tree, one .vm file per .jack input.
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
	return jackPath[:len(jackPath)-len(ext)] + ".vm"
}

// compileFile runs the engine over a single class file, recovering
// from the panic-based parse/semantic failures at the file boundary
// so one malformed class doesn't abort a whole-directory build.
func compileFile(path string, log *zap.Logger, dumpSymbols bool) (err error) {
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
			if compileErr, ok := r.(error); ok {
				err = compileErr
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	tok := jacklex.New(in)
	writer := jack.NewVMWriter(out)
	engine := jack.New(tok, writer, log)
	engine.Compile()
	if dumpSymbols {
		for _, name := range engine.DumpSymbols() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, name)
		}
	}
	return nil
}

func run(c *cli.Context) error {
	log := clilog.New(c.Bool("verbose"))
	defer log.Sync()

	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: jackc <file.jack|directory>", 1)
	}

	files, err := collectJackFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return cli.Exit(fmt.Sprintf("no .jack files found under %q", path), 1)
	}

	dumpSymbols := c.Bool("dump-symbols")
	failed := 0
	for _, f := range files {
		log.Info("compiling", zap.String("file", f))
		if err := compileFile(f, log, dumpSymbols); err != nil {
			log.Error("compile failed", zap.String("file", f), zap.Error(err))
			failed++
			continue
		}
		log.Info("wrote", zap.String("file", outputPath(f)))
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d file(s) failed to compile", failed), 1)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:      "jackc",
		Usage:     "compile Jack source to VM code",
		ArgsUsage: "<file.jack|directory>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "dump-symbols", Usage: "print each class's static/field symbol names to stderr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
