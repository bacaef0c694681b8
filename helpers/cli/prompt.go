package cli

import (
	"bytes"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// MainLoop runs interactive prompt on terminal, otherwise executes stdin line by line.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(signalCh)
	go func() {
		for range signalCh {
			os.Exit(1)
		}
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
		).Run()
		return nil
	}
	return RunReader(os.Stdin, exec)
}

// RunReader executes every non-empty line of r.
func RunReader(r io.Reader, exec func(line string)) error {
	all, err := io.ReadAll(r)
	if err != nil {
		return errors.Annotate(err, "read input")
	}
	for _, lineb := range bytes.Split(all, []byte{'\n'}) {
		if line := string(bytes.TrimSpace(lineb)); line != "" {
			exec(line)
		}
	}
	return nil
}
