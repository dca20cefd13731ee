package docqa

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/errors"
)

func runProvision(ctx context.Context, core biz.Core, root string, out io.Writer) error {
	dep, err := core.Provision(ctx, root)
	status := core.Status()
	if status.Staging != nil {
		printStaging(out, status.Staging)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Knowledge index: %s (%s)\n", status.IndexName, dep.IndexID)
	fmt.Fprintf(out, "Data source:     %s\n", dep.DataSourceID)
	fmt.Fprintf(out, "Agent:           %s (%s, alias %s)\n", status.AgentName, dep.AgentID, dep.AgentAliasID)
	fmt.Fprintln(out, "Ready.")
	return nil
}

func printStaging(out io.Writer, r *model.StagingReport) {
	fmt.Fprintf(out, "Staged %d/%d documents (%d skipped)\n", r.Uploaded, r.Eligible, r.Skipped)
	for _, f := range r.Failed {
		fmt.Fprintf(out, "  failed: %s\n", f)
	}
}

func runQuery(ctx context.Context, core biz.Core, question string, out io.Writer) error {
	if _, err := core.Attach(ctx); err != nil {
		return err
	}
	result := core.SubmitQuery(ctx, question)
	printResult(out, result)
	return resultError(result)
}

func runBatch(ctx context.Context, core biz.Core, questions []string, out io.Writer) error {
	if len(questions) == 0 {
		return errors.ErrInvalidParam.WithMessage("no questions to run")
	}
	if _, err := core.Attach(ctx); err != nil {
		return err
	}
	session, err := core.Sessions().Create(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for i, q := range questions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(questions), q)
		result, err := core.Ask(ctx, session.ID(), q)
		if err != nil && result == nil {
			return err
		}
		printResult(out, result)
		if result.Failed() {
			failed++
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Questions: %d (failed %d)\n", len(questions), failed)
	printAverages(out, session.View())
	return nil
}

func printAverages(out io.Writer, view model.StatsView) {
	fmt.Fprintf(out, "Average latency: %.2fs\n", view.AverageLatencySeconds)
	fmt.Fprintf(out, "Average answer length: %.0f chars\n", view.AverageAnswerChars)
}

// runInteractive 逐行读取问题直到 quit/exit 或输入结束。
// reset 清空本会话，stats 打印当前统计。
func runInteractive(ctx context.Context, core biz.Core, in io.Reader, out io.Writer) error {
	if _, err := core.Attach(ctx); err != nil {
		return err
	}
	session, err := core.Sessions().Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Knowledge index: %s\n", core.Status().IndexName)
	fmt.Fprintln(out, "Type a question, 'stats', 'reset' or 'quit'.")

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "退出":
			printAverages(out, session.View())
			return nil
		case "stats":
			view := session.View()
			fmt.Fprintf(out, "Questions: %d\n", view.QueryCount)
			printAverages(out, view)
			continue
		case "reset":
			if err := core.Sessions().Reset(ctx, session.ID()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		result, err := core.Ask(ctx, session.ID(), line)
		if err != nil && result == nil {
			return err
		}
		printResult(out, result)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	printAverages(out, session.View())
	return nil
}

func printResult(out io.Writer, r *model.QueryResult) {
	if r.Failed() {
		fmt.Fprintf(out, "Error (%s): %s\n", r.ErrorKind, r.ErrorMessage)
		return
	}
	fmt.Fprintln(out, r.Answer)
	if len(r.Citations) > 0 {
		fmt.Fprintf(out, "Sources: %s\n", strings.Join(r.Citations, ", "))
	}
	fmt.Fprintf(out, "Latency: %.2fs\n", r.LatencySeconds)
}

func resultError(r *model.QueryResult) error {
	switch r.ErrorKind {
	case model.ErrorKindNone:
		return nil
	case model.ErrorKindNotReady:
		return errors.ErrNotReady.WithMessage(r.ErrorMessage)
	case model.ErrorKindInvalidQuestion:
		return errors.ErrInvalidQuestion.WithMessage(r.ErrorMessage)
	default:
		return errors.ErrServiceFailure.WithMessage(r.ErrorMessage)
	}
}

func runTeardown(ctx context.Context, core biz.Core, purge bool, out io.Writer) error {
	outcomes := core.Teardown(ctx, biz.WithPurgeStaged(purge))
	failed := 0
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			fmt.Fprintf(out, "%-8s skipped\n", o.Resource)
		case o.Succeeded:
			fmt.Fprintf(out, "%-8s deleted\n", o.Resource)
		default:
			failed++
			fmt.Fprintf(out, "%-8s FAILED: %s\n", o.Resource, o.ErrorMessage)
		}
	}
	if failed > 0 {
		return errors.ErrTeardownPartial.WithMessagef("%d of %d resources could not be deleted", failed, len(outcomes))
	}
	return nil
}

// readQuestions 读取问题文件，忽略空行与 # 注释。
func readQuestions(path string) ([]string, error) {
	if path == "" {
		return nil, errors.ErrInvalidParam.WithMessage("--file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ErrInvalidParam.WithCause(err)
	}
	defer f.Close()

	var questions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return questions, nil
}
