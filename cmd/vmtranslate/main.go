// Command vmtranslate translates VM code to Hack assembly. A single
// .vm file translates to a sibling .asm with no bootstrap; a
// directory of .vm files translates to a single
// <dirname>/<dirname>.asm prefixed with the SP=256 / call Sys.init 0
// bootstrap, since only a directory is assumed to contain a full
// program with a Sys.init entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/libklein/n2t-toolchain/internal/clilog"
	"github.com/libklein/n2t-toolchain/internal/diag"
	"github.com/libklein/n2t-toolchain/internal/hack"
	"github.com/libklein/n2t-toolchain/internal/vm"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func collectVMFiles(fileOrDir string) (files []string, isDir bool, err error) {
	info, err := os.Stat(fileOrDir)
	if err != nil {
		return nil, false, &diag.IOError{Path: fileOrDir, Err: err}
	}
	if !info.IsDir() {
		return []string{fileOrDir}, false, nil
	}

	entries, err := os.ReadDir(fileOrDir)
	if err != nil {
		return nil, true, &diag.IOError{Path: fileOrDir, Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".vm" {
			continue
		}
		files = append(files, filepath.Join(fileOrDir, entry.Name()))
	}
	return files, true, nil
}

func baseNameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func translateOne(path string, w *hack.CodeWriter, log *zap.Logger) error {
	in, err := os.Open(path)
	if err != nil {
		return &diag.IOError{Path: path, Err: err}
	}
	defer in.Close()

	w.SetFileName(baseNameNoExt(path))
	p := vm.NewParser(in)
	for p.Advance() {
		cmd := p.Command()
		if err := w.Write(cmd); err != nil {
			return &diag.ParseError{Pos: path, Err: err}
		}
	}
	if err := p.Err(); err != nil {
		return err
	}
	log.Debug("translated", zap.String("file", path))
	return nil
}

func run(c *cli.Context) error {
	log := clilog.New(c.Bool("verbose"))
	defer log.Sync()

	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: vmtranslate <file.vm|directory>", 1)
	}

	files, isDir, err := collectVMFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return cli.Exit(fmt.Sprintf("no .vm files found under %q", path), 1)
	}

	var outPath string
	if isDir {
		dirName := filepath.Base(filepath.Clean(path))
		outPath = filepath.Join(path, dirName+".asm")
	} else {
		outPath = strings.TrimSuffix(files[0], filepath.Ext(files[0])) + ".asm"
	}

	out, err := os.Create(outPath)
	if err != nil {
		return &diag.IOError{Path: outPath, Err: err}
	}
	defer out.Close()

	writer := hack.NewCodeWriter(out)
	if isDir {
		writer.WriteBootstrap()
	}

	for _, f := range files {
		log.Info("translating", zap.String("file", f))
		if err := translateOne(f, writer, log); err != nil {
			return err
		}
	}

	if c.Bool("dump-symbols") {
		for _, name := range writer.DumpStatics() {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, name)
		}
	}

	log.Info("wrote", zap.String("file", outPath))
	return nil
}

func main() {
	app := &cli.App{
		Name:      "vmtranslate",
		Usage:     "translate VM code to Hack assembly",
		ArgsUsage: "<file.vm|directory>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "dump-symbols", Usage: "print every static symbol emitted to stderr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
