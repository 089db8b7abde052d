package terminal

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

const helpText = "Built-in commands:\r\n" +
	"  cd [dir]     change directory\r\n" +
	"  pwd          print working directory\r\n" +
	"  ls [path]    list directory contents\r\n" +
	"  cat <file>   print file contents\r\n" +
	"  echo <args>  print arguments\r\n" +
	"  clear        clear the screen\r\n" +
	"  env          print environment\r\n" +
	"  help         this message\r\n" +
	"Anything else runs in the sandbox.\r\n"

// execute interprets one committed command line: built-ins run locally,
// everything else is delegated to the sandbox gateway.
func (s *Session) execute(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	// Compound lines go to a real shell even when they start with a
	// built-in name.
	if strings.ContainsAny(line, "|&;<>$`") {
		s.delegate(line)
		return
	}

	switch cmd {
	case "echo":
		s.output(strings.Join(args, " ") + "\r\n")
	case "pwd":
		s.output(s.workdir() + "\r\n")
	case "cd":
		s.changeDir(args)
	case "ls":
		s.listDir(args)
	case "cat":
		s.catFiles(args)
	case "clear":
		s.output("\x1b[2J\x1b[H")
	case "whoami":
		s.output("user\r\n")
	case "hostname":
		s.output("ccdev\r\n")
	case "date":
		s.output(time.Now().Format(time.UnixDate) + "\r\n")
	case "env":
		s.output("HOME=/\r\nPWD=" + s.workdir() + "\r\nSHELL=/bin/sh\r\nTERM=xterm-256color\r\n")
	case "uname":
		if len(args) > 0 && args[0] == "-a" {
			s.output("Linux ccdev 6.1.0 x86_64 GNU/Linux\r\n")
		} else {
			s.output("Linux\r\n")
		}
	case "help":
		s.output(helpText)
	default:
		s.delegate(line)
	}
}

func (s *Session) workdir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Session) setCwd(dir string) {
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
}

func (s *Session) size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// resolvePath turns a command argument into a workspace-absolute path
// relative to the current directory.
func (s *Session) resolvePath(arg string) string {
	if arg == "" || arg == "~" {
		return "/"
	}
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Clean(path.Join(s.workdir(), arg))
}

func (s *Session) changeDir(args []string) {
	target := "/"
	if len(args) > 0 {
		target = s.resolvePath(args[0])
	}
	if target != "/" {
		entry, err := s.gw.Stat(context.Background(), target)
		if err != nil || !entry.IsDir {
			s.output(fmt.Sprintf("cd: no such directory: %s\r\n", target))
			return
		}
	}
	s.setCwd(target)
}

func (s *Session) listDir(args []string) {
	target := s.workdir()
	if len(args) > 0 {
		target = s.resolvePath(args[0])
	}
	entries, err := s.gw.ListFiles(context.Background(), target)
	if err != nil {
		s.output(fmt.Sprintf("ls: %s\r\n", pathErrText(err, target)))
		return
	}
	for _, e := range entries {
		if e.IsDir {
			s.output("\x1b[1;34m" + e.Name + "/\x1b[0m\r\n")
		} else {
			s.output(e.Name + "\r\n")
		}
	}
}

func (s *Session) catFiles(args []string) {
	if len(args) == 0 {
		s.output("cat: missing file argument\r\n")
		return
	}
	for _, arg := range args {
		target := s.resolvePath(arg)
		data, err := s.gw.ReadFile(context.Background(), target)
		if err != nil {
			s.output(fmt.Sprintf("cat: %s\r\n", pathErrText(err, target)))
			continue
		}
		out := crlf(string(data))
		if out != "" && !strings.HasSuffix(out, "\r\n") {
			out += "\r\n"
		}
		s.output(out)
	}
}

// delegate runs a command line in the sandbox, streaming output back to the
// attached clients. A command line starting with cd is reconciled against
// the sandbox afterwards so the session's cwd tracks what the shell did.
func (s *Session) delegate(line string) {
	cols, rows := s.size()
	opts := sandbox.ExecOptions{Workdir: s.workdir(), Cols: cols, Rows: rows}

	if strings.HasPrefix(line, "cd ") || line == "cd" {
		s.delegateWithCwd(line, opts)
		return
	}

	result, err := s.gw.RunStream(context.Background(), line, opts, func(b []byte) {
		s.output(crlf(string(b)))
	})
	if err != nil {
		s.sendFrame(Frame{Type: "error", Data: err.Error()})
		return
	}
	if result.ExitCode != 0 {
		s.sendFrame(Frame{Type: "exit", ExitCode: result.ExitCode})
	}
}

// delegateWithCwd runs a cd-bearing command line with `&& pwd` appended and
// adopts the reported directory. The session has no persistent shell, so
// this is the only way a compound cd can stick.
func (s *Session) delegateWithCwd(line string, opts sandbox.ExecOptions) {
	result, err := s.gw.Run(context.Background(), line+" && pwd", opts)
	if err != nil {
		s.sendFrame(Frame{Type: "error", Data: err.Error()})
		return
	}
	stdout := result.Stdout
	if result.ExitCode == 0 {
		lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
		reported := lines[len(lines)-1]
		if strings.HasPrefix(reported, "/") {
			if dir, ok := s.sandboxDir(reported); ok {
				s.setCwd(dir)
			}
			stdout = strings.Join(lines[:len(lines)-1], "\n")
			if stdout != "" {
				stdout += "\n"
			}
		}
	}
	if stdout != "" {
		s.output(crlf(stdout))
	}
	if result.Stderr != "" {
		s.output(crlf(result.Stderr))
	}
	if result.ExitCode != 0 {
		s.sendFrame(Frame{Type: "exit", ExitCode: result.ExitCode})
	}
}

// sandboxDir validates a shell-reported absolute path against the gateway
// and maps it into workspace-relative form when possible.
func (s *Session) sandboxDir(reported string) (string, bool) {
	reported = path.Clean(reported)
	entry, err := s.gw.Stat(context.Background(), reported)
	if err == nil && entry.IsDir {
		return reported, true
	}
	// Local gateways report host-absolute paths; retry progressively
	// shorter suffixes until one resolves inside the workspace.
	rest := reported
	for {
		idx := strings.Index(rest[1:], "/")
		if idx < 0 {
			break
		}
		rest = rest[idx+1:]
		if entry, err := s.gw.Stat(context.Background(), rest); err == nil && entry.IsDir {
			return rest, true
		}
	}
	return "", false
}

func pathErrText(err error, target string) string {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return "no such file or directory: " + target
	case errors.Is(err, sandbox.ErrInvalidPath):
		return "invalid path: " + target
	default:
		return err.Error()
	}
}
