// Package agenttest provides a scripted automation agent for tests. The
// test binary re-executes itself as the agent: call Main from TestMain and
// pass Command(t) as the agent command line.
//
// The agent answers each request according to its prefix:
//
//	echo...   returns the request unchanged
//	info...   emits two INFO lines before the payload
//	flaky...  answers ERROR: twice per distinct request, then succeeds
//	error...  always answers ERROR:
//	empty...  answers an empty line
//	space...  answers text containing a space
//	hang...   never answers
//	exit...   exits without answering
//
// Any other request is answered with Prefix + request. Script overrides
// the behavior for exact requests. Started with a fourth positional
// argument, the agent answers that phrase once and exits.
package agenttest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// EnvVar switches the test binary into agent mode.
const EnvVar = "IMEBENCH_AGENTTEST"

// ScriptVar carries per-request behaviors set by Script.
const ScriptVar = "IMEBENCH_AGENTTEST_SCRIPT"

// Prefix is prepended to requests the agent converts.
const Prefix = "変換"

// Main runs the agent and exits if the process was started by Command.
func Main() {
	if os.Getenv(EnvVar) != "1" {
		return
	}
	var positional []string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		positional = append(positional, arg)
	}
	os.Exit(run(positional, os.Stdin, os.Stdout))
}

// Command enables agent mode for child processes of the test and returns
// the command line that starts the agent.
func Command(t testing.TB) []string {
	t.Helper()
	t.Setenv(EnvVar, "1")
	return []string{os.Args[0], "-test.run=^$"}
}

// Script makes the agent treat each request key as if it started with the
// behavior name in its value, e.g. {"honn": "echo"}.
func Script(t testing.TB, script map[string]string) {
	t.Helper()
	pairs := make([]string, 0, len(script))
	for req, behavior := range script {
		pairs = append(pairs, req+"="+behavior)
	}
	t.Setenv(ScriptVar, strings.Join(pairs, ";"))
}

func parseScript(s string) map[string]string {
	script := map[string]string{}
	for _, pair := range strings.Split(s, ";") {
		if req, behavior, ok := strings.Cut(pair, "="); ok {
			script[req] = behavior
		}
	}
	return script
}

func run(args []string, in io.Reader, out io.Writer) int {
	logw := openLog(args)
	if logw != nil {
		defer logw.Close()
		fmt.Fprintf(logw, "start %s\n", strings.Join(args, " "))
	}
	a := &agent{out: out, log: logw, seen: map[string]int{}, script: parseScript(os.Getenv(ScriptVar))}
	if len(args) >= 4 {
		if code := a.answer(args[3]); code >= 0 {
			return code
		}
		return 0
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if code := a.answer(scanner.Text()); code >= 0 {
			return code
		}
	}
	return 0
}

func openLog(args []string) *os.File {
	if len(args) < 2 || args[1] == "" {
		return nil
	}
	f, err := os.OpenFile(args[1], os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return f
}

type agent struct {
	out    io.Writer
	log    io.Writer
	seen   map[string]int
	script map[string]string
}

// answer replies to one request. It returns an exit code when the agent
// must stop, or -1 to keep serving.
func (a *agent) answer(req string) int {
	if a.log != nil {
		fmt.Fprintf(a.log, "req %s\n", req)
	}
	a.seen[req]++
	behavior := req
	if b, ok := a.script[req]; ok {
		behavior = b
	}
	switch {
	case strings.HasPrefix(behavior, "echo"):
		fmt.Fprintln(a.out, req)
	case strings.HasPrefix(behavior, "info"):
		fmt.Fprintln(a.out, "INFO: typing")
		fmt.Fprintln(a.out, "INFO: converting")
		fmt.Fprintln(a.out, Prefix+req)
	case strings.HasPrefix(behavior, "flaky"):
		if a.seen[req] <= 2 {
			fmt.Fprintln(a.out, "ERROR: clipboard empty")
		} else {
			fmt.Fprintln(a.out, Prefix+req)
		}
	case strings.HasPrefix(behavior, "error"):
		fmt.Fprintln(a.out, "ERROR: clipboard empty")
	case strings.HasPrefix(behavior, "empty"):
		fmt.Fprintln(a.out)
	case strings.HasPrefix(behavior, "space"):
		fmt.Fprintln(a.out, Prefix+" "+req)
	case strings.HasPrefix(behavior, "hang"):
		time.Sleep(time.Hour)
	case strings.HasPrefix(behavior, "exit"):
		return 3
	default:
		fmt.Fprintln(a.out, Prefix+req)
	}
	return -1
}
