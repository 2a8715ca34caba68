package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/zerovault/zerovault"
)

var replDBPath string

var replCmd = &cobra.Command{
	Use:   "repl --db <path>",
	Short: "Open an interactive SQL console against a database",
	Args:  cobra.NoArgs,
	RunE:  runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replDBPath, "db", "", "database path (falls back to --config's path)")
}

// console is a readline-driven SQL REPL, adapted from the teacher's
// chat loop: same readline.Instance setup and Readline/EOF/Interrupt
// handling, repurposed from conversational turns to raw SQL plus a
// `watch` meta-command backed by zerovault.Subscribe.
type console struct {
	db *zerovault.DB
	rl *readline.Instance

	watches []*zerovault.Subscription
}

func runRepl(cmd *cobra.Command, args []string) error {
	if replDBPath == "" {
		replDBPath = cfg.Path
	}
	if replDBPath == "" {
		return fmt.Errorf("--db is required (or set path in --config)")
	}

	db, err := zerovault.Open(replDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mzerovault>\033[0m ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	c := &console{db: db, rl: rl}
	return c.run()
}

func (c *console) run() error {
	fmt.Printf("zerovault repl — replica %s. Type .help for commands.\n", c.db.ReplicaID())
	defer c.closeWatches()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Printf("\033[31merror: %v\033[0m\n", err)
		}
	}
}

func (c *console) dispatch(line string) error {
	switch {
	case line == ".help":
		c.printHelp()
		return nil
	case line == ".exit" || line == ".quit":
		return io.EOF
	case strings.HasPrefix(line, "watch "):
		return c.watch(strings.TrimSpace(strings.TrimPrefix(line, "watch ")))
	default:
		return c.runSQL(line)
	}
}

func (c *console) printHelp() {
	fmt.Println(`commands:
  <sql>           run a one-shot query or statement
  watch <sql>     subscribe to a query; reprints when a tracked write changes it
  .help           show this message
  .exit / .quit   leave the console`)
}

// runSQL executes line as a one-shot read via QueryRaw, which scans
// into column-name-keyed maps since the console has no static row
// type to decode into.
func (c *console) runSQL(line string) error {
	rows, err := zerovault.QueryRaw(c.db, line)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(0 rows)")
		return nil
	}
	for i, row := range rows {
		fmt.Printf("%d: %v\n", i, row)
	}
	return nil
}

// watch registers query as a live subscription and prints its result
// now and again whenever the broker is notified of a change-tracked
// write (Save, Delete, or a sync merge) through this process's DB that
// changes it, exactly as for any other zerovault.Subscribe caller.
// Writes by other processes, and SQL typed at the console (run through
// QueryRaw, outside the changelog), do not trigger a re-run.
func (c *console) watch(query string) error {
	sub, err := zerovault.SubscribeRaw(c.db, query, func(rows []map[string]any, err error) {
		if err != nil {
			fmt.Printf("\033[33m[watch] error: %v\033[0m\n", err)
			return
		}
		fmt.Printf("\033[33m[watch] %d row(s):\033[0m\n", len(rows))
		for i, row := range rows {
			fmt.Printf("  %d: %v\n", i, row)
		}
	})
	if err != nil {
		return err
	}
	c.watches = append(c.watches, sub)
	return nil
}

func (c *console) closeWatches() {
	for _, w := range c.watches {
		w.Close()
	}
	c.watches = nil
}
