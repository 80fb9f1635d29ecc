package iocli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptyInput возвращается, если ввод закончился до перевода строки
var ErrEmptyInput = errors.New("no input")

// Stdio читает из in и пишет в out. Секреты читаются без эха, если in - терминал.
type Stdio struct {
	out    io.Writer
	reader *bufio.Reader
	fd     int
	isTerm bool
}

// NewStdio создает IO поверх os.Stdin и os.Stdout
func NewStdio() IO {
	fd := int(os.Stdin.Fd())
	return &Stdio{
		out:    os.Stdout,
		reader: bufio.NewReader(os.Stdin),
		fd:     fd,
		isTerm: term.IsTerminal(fd),
	}
}

// New создает IO поверх произвольных потоков, например для тестов и пайпов
func New(in io.Reader, out io.Writer) IO {
	return &Stdio{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && input != "" {
			return strings.TrimSpace(input), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrEmptyInput
		}
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadSecret читает строку без эха. Вне терминала ведет себя как ReadInput.
func (s *Stdio) ReadSecret(prompt string) (string, error) {
	if !s.isTerm {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	secret, err := term.ReadPassword(s.fd)
	s.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}
