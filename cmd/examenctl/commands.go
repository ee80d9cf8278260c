package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.temporal.io/sdk/client"

	"github.com/ahrav/go-examen/internal/assessment"
	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/internal/record"
	"github.com/ahrav/go-examen/internal/worker"
	"github.com/ahrav/go-examen/internal/workflow"
)

// attemptWorkflowID is the workflow ID of the attempt for answerID. One
// answer has at most one running attempt workflow.
func attemptWorkflowID(answerID string) string { return "attempt-" + answerID }

// values collects a repeatable string flag.
type values []string

func (v *values) String() string { return strings.Join(*v, ",") }

func (v *values) Set(s string) error {
	*v = append(*v, s)
	return nil
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func requireFlag(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return nil
}

func parseIDList(field, csv string) ([]domain.ID, error) {
	var ids []domain.ID
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := domain.ParseID(part)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: -%s needs at least one id", errUsage, field)
	}
	return ids, nil
}

func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// decodeQuestions turns authoring records into questions, assigning fresh
// identifiers where the file leaves them blank.
func decodeQuestions(recs []record.QuestionRecord) ([]domain.Question, error) {
	qs := make([]domain.Question, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			rec.ID = domain.NewID().String()
		}
		q, err := rec.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		qs[i] = q
	}
	return qs, nil
}

// examFile is the authoring format accepted by exam create.
type examFile struct {
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	Instructions string                  `json:"instructions"`
	Questions    []record.QuestionRecord `json:"questions"`
}

// examView is an exam as printed by the exam commands.
type examView struct {
	record.ExamRecord
	MaxPoints float64 `json:"max_points"`
}

func (a *app) printExam(exam *domain.Exam) error {
	total, err := exam.MaxPoints()
	if err != nil {
		return err
	}
	return a.print(examView{ExamRecord: record.FromExam(exam), MaxPoints: total.Value()})
}

func examCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("exam create")
	file := fs.String("file", "-", "exam JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var in examFile
	if err := readJSON(*file, &in); err != nil {
		return err
	}
	qs, err := decodeQuestions(in.Questions)
	if err != nil {
		return err
	}
	exam, err := a.svc.CreateExam(ctx, assessment.ExamInput{
		Title:        in.Title,
		Description:  in.Description,
		Instructions: in.Instructions,
		Questions:    qs,
	})
	if err != nil {
		return err
	}
	return a.printExam(exam)
}

func examShow(ctx context.Context, a *app, args []string) error {
	fs := newFlags("exam show")
	id := fs.String("id", "", "exam id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("id", *id); err != nil {
		return err
	}
	examID, err := domain.ParseID(*id)
	if err != nil {
		return err
	}
	exam, err := a.svc.LoadExam(ctx, examID)
	if err != nil {
		return err
	}
	return a.printExam(exam)
}

func examAppend(ctx context.Context, a *app, args []string) error {
	fs := newFlags("exam append")
	id := fs.String("id", "", "exam id")
	questions := fs.String("questions", "", "comma-separated bank question ids")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("id", *id); err != nil {
		return err
	}
	examID, err := domain.ParseID(*id)
	if err != nil {
		return err
	}
	qids, err := parseIDList("questions", *questions)
	if err != nil {
		return err
	}
	if err := a.svc.AppendQuestions(ctx, examID, qids); err != nil {
		return err
	}
	exam, err := a.svc.LoadExam(ctx, examID)
	if err != nil {
		return err
	}
	return a.printExam(exam)
}

func examReorder(ctx context.Context, a *app, args []string) error {
	fs := newFlags("exam reorder")
	id := fs.String("id", "", "exam id")
	questions := fs.String("questions", "", "comma-separated question ids to move to the front, in order")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("id", *id); err != nil {
		return err
	}
	examID, err := domain.ParseID(*id)
	if err != nil {
		return err
	}
	qids, err := parseIDList("questions", *questions)
	if err != nil {
		return err
	}
	exam, err := a.svc.ReorderQuestions(ctx, examID, qids)
	if err != nil {
		return err
	}

	ids := exam.QuestionIDs()
	order := make([]string, len(ids))
	for i, qid := range ids {
		order[i] = qid.String()
	}
	return a.print(map[string]any{"exam_id": examID.String(), "order": order})
}

func examRemove(ctx context.Context, a *app, args []string) error {
	fs := newFlags("exam remove")
	id := fs.String("id", "", "exam id")
	question := fs.String("question", "", "question id to remove")
	index := fs.Int("index", -1, "zero-based position to remove")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("id", *id); err != nil {
		return err
	}
	examID, err := domain.ParseID(*id)
	if err != nil {
		return err
	}

	var exam *domain.Exam
	switch {
	case *question != "" && *index >= 0:
		return fmt.Errorf("%w: -question and -index are exclusive", errUsage)
	case *question != "":
		qid, err := domain.ParseID(*question)
		if err != nil {
			return err
		}
		exam, err = a.svc.RemoveQuestion(ctx, examID, qid)
		if err != nil {
			return err
		}
	case *index >= 0:
		exam, err = a.svc.RemoveQuestionAt(ctx, examID, *index)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: one of -question or -index is required", errUsage)
	}
	return a.printExam(exam)
}

func bankAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("bank add")
	file := fs.String("file", "-", "JSON array of questions, - for stdin")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var recs []record.QuestionRecord
	if err := readJSON(*file, &recs); err != nil {
		return err
	}
	qs, err := decodeQuestions(recs)
	if err != nil {
		return err
	}
	if err := a.svc.AddToBank(ctx, qs...); err != nil {
		return err
	}
	out := make([]record.QuestionRecord, len(qs))
	for i, q := range qs {
		out[i] = record.FromQuestion(q)
	}
	return a.print(out)
}

func applicantAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("applicant add")
	id := fs.String("id", "", "applicant id; generated when empty")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	applicantID := domain.NewID()
	if *id != "" {
		var err error
		if applicantID, err = domain.ParseID(*id); err != nil {
			return err
		}
	}
	if err := a.applicants.RegisterApplicant(ctx, applicantID); err != nil {
		return err
	}
	return a.print(map[string]string{"applicant_id": applicantID.String()})
}

func assign(ctx context.Context, a *app, args []string) error {
	fs := newFlags("assign")
	applicant := fs.String("applicant", "", "applicant id")
	exams := fs.String("exams", "", "comma-separated exam ids")
	evaluation := fs.String("evaluation", "", "evaluation id; generated when empty")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("applicant", *applicant); err != nil {
		return err
	}
	applicantID, err := domain.ParseID(*applicant)
	if err != nil {
		return err
	}
	examIDs, err := parseIDList("exams", *exams)
	if err != nil {
		return err
	}
	evalID := domain.NewID()
	if *evaluation != "" {
		if evalID, err = domain.ParseID(*evaluation); err != nil {
			return err
		}
	}

	answer, err := a.svc.AssignEvaluation(ctx, evalID, applicantID, examIDs)
	if err != nil {
		return err
	}
	return a.print(record.FromAnswer(answer))
}

func answerShow(ctx context.Context, a *app, args []string) error {
	fs := newFlags("answer show")
	id := fs.String("id", "", "answer id")
	applicant := fs.String("applicant", "", "applicant id; shows the current answer")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var (
		answer *domain.Answer
		err    error
	)
	switch {
	case *id != "":
		var answerID domain.ID
		if answerID, err = domain.ParseID(*id); err != nil {
			return err
		}
		answer, err = a.svc.LoadAnswer(ctx, answerID)
	case *applicant != "":
		var applicantID domain.ID
		if applicantID, err = domain.ParseID(*applicant); err != nil {
			return err
		}
		answer, err = a.svc.CurrentAnswer(ctx, applicantID)
	default:
		return fmt.Errorf("%w: one of -id or -applicant is required", errUsage)
	}
	if err != nil {
		return err
	}

	out := struct {
		record.AnswerRecord
		Elapsed string   `json:"elapsed"`
		Next    []string `json:"next_operations"`
	}{
		AnswerRecord: record.FromAnswer(answer),
		Next:         []string{},
	}
	for _, op := range domain.Allowed(answer.State()) {
		out.Next = append(out.Next, op.String())
	}
	elapsed, err := a.svc.Elapsed(ctx, answer.ID())
	if err != nil {
		return err
	}
	out.Elapsed = elapsed.String()
	return a.print(out)
}

// answerFlag parses the -answer flag shared by the attempt commands.
func answerFlag(name string, args []string, extra func(*flag.FlagSet)) (string, error) {
	fs := newFlags(name)
	answer := fs.String("answer", "", "answer id")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := requireFlag("answer", *answer); err != nil {
		return "", err
	}
	if _, err := domain.ParseID(*answer); err != nil {
		return "", err
	}
	return *answer, nil
}

func attemptStart(ctx context.Context, a *app, args []string) error {
	limit := a.cfg.Attempt.TimeLimit
	answerID, err := answerFlag("attempt start", args, func(fs *flag.FlagSet) {
		fs.DurationVar(&limit, "time-limit", limit, "auto-finish this long after start; 0 disables")
	})
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}

	req := worker.AttemptRequest(a.cfg, answerID)
	req.TimeLimit = limit
	if err := req.Validate(); err != nil {
		return err
	}

	wfID := attemptWorkflowID(answerID)
	wr, err := c.SignalWithStartWorkflow(ctx, wfID, workflow.SignalStart, nil,
		client.StartWorkflowOptions{ID: wfID, TaskQueue: a.cfg.Temporal.TaskQueue},
		workflow.AttemptWorkflow, req,
	)
	if err != nil {
		return fmt.Errorf("failed to start attempt workflow: %w", err)
	}
	return a.print(map[string]string{"workflow_id": wr.GetID(), "run_id": wr.GetRunID()})
}

func attemptSubmit(ctx context.Context, a *app, args []string) error {
	var (
		question string
		response values
	)
	answerID, err := answerFlag("attempt submit", args, func(fs *flag.FlagSet) {
		fs.StringVar(&question, "question", "", "question id")
		fs.Var(&response, "value", "response value; repeat for multiple")
	})
	if err != nil {
		return err
	}
	if err := requireFlag("question", question); err != nil {
		return err
	}
	if _, err := domain.ParseID(question); err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}

	sub := workflow.Submission{QuestionID: question, Response: response}
	if err := c.SignalWorkflow(ctx, attemptWorkflowID(answerID), "", workflow.SignalSubmit, sub); err != nil {
		return fmt.Errorf("failed to signal submission: %w", err)
	}
	return a.print(sub)
}

func attemptFinish(ctx context.Context, a *app, args []string) error {
	answerID, err := answerFlag("attempt finish", args, nil)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	if err := c.SignalWorkflow(ctx, attemptWorkflowID(answerID), "", workflow.SignalFinish, nil); err != nil {
		return fmt.Errorf("failed to signal finish: %w", err)
	}
	return a.print(map[string]string{"workflow_id": attemptWorkflowID(answerID)})
}

func attemptStatus(ctx context.Context, a *app, args []string) error {
	answerID, err := answerFlag("attempt status", args, nil)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	val, err := c.QueryWorkflow(ctx, attemptWorkflowID(answerID), "", workflow.QueryStatus)
	if err != nil {
		return fmt.Errorf("failed to query attempt: %w", err)
	}
	var st workflow.Status
	if err := val.Get(&st); err != nil {
		return err
	}
	return a.print(st)
}

// pendingEntry is one line of the review queue.
type pendingEntry struct {
	AnswerID    string `json:"answer_id"`
	ApplicantID string `json:"applicant_id"`
	State       string `json:"state"`
	FinishedAt  string `json:"finished_at"`
}

func reviewPending(ctx context.Context, a *app, args []string) error {
	if err := newFlags("review pending").Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	answers, err := a.svc.PendingRevision(ctx)
	if err != nil {
		return err
	}
	out := make([]pendingEntry, len(answers))
	for i, ans := range answers {
		out[i] = pendingEntry{
			AnswerID:    ans.ID().String(),
			ApplicantID: ans.ApplicantID().String(),
			State:       ans.State().String(),
			FinishedAt:  record.FormatTime(ans.FinishedAt()),
		}
	}
	return a.print(out)
}

func reviewBegin(ctx context.Context, a *app, args []string) error {
	answerID, err := answerFlag("review begin", args, nil)
	if err != nil {
		return err
	}
	id, _ := domain.ParseID(answerID)
	answer, err := a.svc.BeginReview(ctx, id)
	if err != nil {
		return err
	}
	return a.print(record.FromAnswer(answer))
}

func reviewObserve(ctx context.Context, a *app, args []string) error {
	var exam, note, reviewer string
	answerID, err := answerFlag("review observe", args, func(fs *flag.FlagSet) {
		fs.StringVar(&exam, "exam", "", "exam id")
		fs.StringVar(&note, "note", "", "observation text")
		fs.StringVar(&reviewer, "reviewer", "", "reviewer as type:id")
	})
	if err != nil {
		return err
	}
	if err := requireFlag("exam", exam); err != nil {
		return err
	}
	if err := requireFlag("reviewer", reviewer); err != nil {
		return err
	}
	id, _ := domain.ParseID(answerID)
	examID, err := domain.ParseID(exam)
	if err != nil {
		return err
	}
	rv, err := domain.ParseReviewer(reviewer)
	if err != nil {
		return err
	}
	answer, err := a.svc.RecordObservation(ctx, id, examID, note, rv)
	if err != nil {
		return err
	}
	return a.print(record.FromAnswer(answer))
}

func reviewFinalize(ctx context.Context, a *app, args []string) error {
	var status, reviewer string
	answerID, err := answerFlag("review final", args, func(fs *flag.FlagSet) {
		fs.StringVar(&status, "status", "", "final revision status")
		fs.StringVar(&reviewer, "reviewer", "", "reviewer as type:id")
	})
	if err != nil {
		return err
	}
	if err := requireFlag("reviewer", reviewer); err != nil {
		return err
	}
	id, _ := domain.ParseID(answerID)
	rs, err := domain.ParseRevisionStatus(status)
	if err != nil {
		return err
	}
	rv, err := domain.ParseReviewer(reviewer)
	if err != nil {
		return err
	}
	answer, err := a.svc.FinalizeReview(ctx, id, rs, rv)
	if err != nil {
		return err
	}
	return a.print(record.FromAnswer(answer))
}
