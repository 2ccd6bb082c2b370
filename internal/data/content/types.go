package content

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

var textFormats = map[string]bool{"markdown": true, "html": true, "plain": true}

type textStrategy struct{ base }

func (s *textStrategy) Prepare(lessonID uuid.UUID, in *domainagg.ContentInput) (catalog.Payload, error) {
	p := &catalog.LessonContent{Format: "markdown"}
	p.LessonID = lessonID
	if in == nil {
		return p, nil
	}
	if _, err := s.Update(p, *in); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *textStrategy) Update(p catalog.Payload, in domainagg.ContentInput) ([]string, error) {
	c, err := payloadAs[catalog.LessonContent](p)
	if err != nil {
		return nil, err
	}
	if in.Format != nil {
		f := strings.ToLower(strings.TrimSpace(*in.Format))
		if !textFormats[f] {
			return nil, invalid("format must be one of markdown, html, plain")
		}
		c.Format = f
	}
	if in.Body != nil {
		c.Body = *in.Body
	}
	return nil, nil
}

type assignmentStrategy struct{ base }

func (s *assignmentStrategy) Prepare(lessonID uuid.UUID, in *domainagg.ContentInput) (catalog.Payload, error) {
	p := &catalog.LessonAssignment{MaxScore: 100}
	p.LessonID = lessonID
	if in == nil {
		return p, nil
	}
	if _, err := s.Update(p, *in); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *assignmentStrategy) Update(p catalog.Payload, in domainagg.ContentInput) ([]string, error) {
	a, err := payloadAs[catalog.LessonAssignment](p)
	if err != nil {
		return nil, err
	}
	if in.Instructions != nil {
		a.Instructions = strings.TrimSpace(*in.Instructions)
	}
	if in.MaxScore != nil {
		if *in.MaxScore < 1 {
			return nil, invalid("max score must be at least 1")
		}
		a.MaxScore = *in.MaxScore
	}
	if in.DueInDays != nil {
		if *in.DueInDays < 0 {
			return nil, invalid("due in days cannot be negative")
		}
		a.DueInDays = *in.DueInDays
	}
	return nil, nil
}

type quizStrategy struct {
	base
	validate *validator.Validate
}

func (s *quizStrategy) Prepare(lessonID uuid.UUID, in *domainagg.ContentInput) (catalog.Payload, error) {
	p := &catalog.LessonQuiz{Questions: datatypes.JSON("[]"), PassingScore: 70}
	p.LessonID = lessonID
	if in == nil {
		return p, nil
	}
	if _, err := s.Update(p, *in); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *quizStrategy) Update(p catalog.Payload, in domainagg.ContentInput) ([]string, error) {
	q, err := payloadAs[catalog.LessonQuiz](p)
	if err != nil {
		return nil, err
	}
	if in.Questions != nil {
		for i, question := range in.Questions {
			if err := s.validate.Struct(question); err != nil {
				return nil, invalid("question %d: %v", i+1, err)
			}
			if question.Answer >= len(question.Options) {
				return nil, invalid("question %d: answer index out of range", i+1)
			}
		}
		raw, err := json.Marshal(in.Questions)
		if err != nil {
			return nil, err
		}
		q.Questions = datatypes.JSON(raw)
	}
	if in.PassingScore != nil {
		if *in.PassingScore < 0 || *in.PassingScore > 100 {
			return nil, invalid("passing score must be between 0 and 100")
		}
		q.PassingScore = *in.PassingScore
	}
	return nil, nil
}

// DecodeQuestions reads the stored question list of a quiz payload.
func DecodeQuestions(q *catalog.LessonQuiz) ([]catalog.QuizQuestion, error) {
	out := []catalog.QuizQuestion{}
	if len(q.Questions) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(q.Questions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const pdfContentType = "application/pdf"

type pdfStrategy struct{ base }

func (s *pdfStrategy) Prepare(lessonID uuid.UUID, in *domainagg.ContentInput) (catalog.Payload, error) {
	p := &catalog.LessonPdf{}
	p.LessonID = lessonID
	if in == nil {
		return p, nil
	}
	if _, err := s.Update(p, *in); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *pdfStrategy) Update(p catalog.Payload, in domainagg.ContentInput) ([]string, error) {
	doc, err := payloadAs[catalog.LessonPdf](p)
	if err != nil {
		return nil, err
	}
	if in.Pdf == nil {
		return nil, nil
	}
	obj := *in.Pdf
	if strings.TrimSpace(obj.StorageKey) == "" {
		return nil, invalid("pdf storage key is required")
	}
	if ct := strings.ToLower(strings.TrimSpace(obj.ContentType)); ct != "" && ct != pdfContentType {
		return nil, invalid("pdf content type must be %s", pdfContentType)
	}
	if obj.SizeBytes < 0 {
		return nil, invalid("pdf size cannot be negative")
	}
	var replaced []string
	if doc.StorageKey != "" && doc.StorageKey != obj.StorageKey {
		replaced = append(replaced, doc.StorageKey)
	}
	doc.StorageKey = obj.StorageKey
	doc.FileName = obj.FileName
	doc.ContentType = pdfContentType
	doc.SizeBytes = obj.SizeBytes
	return replaced, nil
}

func (s *pdfStrategy) CleanupOnHardDelete(dbc dbctx.Context, lessonIDs []uuid.UUID) ([]string, error) {
	rows, err := s.repo.GetByLessonIDs(dbc, lessonIDs, true)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, row := range rows {
		if doc, ok := row.(*catalog.LessonPdf); ok && doc.StorageKey != "" {
			keys = append(keys, doc.StorageKey)
		}
	}
	if _, err := s.repo.FullDeleteByLessonIDs(dbc, lessonIDs); err != nil {
		return nil, err
	}
	return keys, nil
}
