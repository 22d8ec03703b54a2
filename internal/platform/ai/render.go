package ai

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthrec/healthrec/internal/platform/blobstore"
)

// reportTemplate is the canonical report layout. Every rendered report,
// whether produced on demand or during regeneration, goes through this
// one template so the two paths cannot drift apart.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Health Report</title>
<style>
body { font-family: Georgia, serif; max-width: 720px; margin: 2rem auto; color: #1f2933; }
h1 { font-size: 1.6rem; border-bottom: 2px solid #1f2933; padding-bottom: .4rem; }
h2 { font-size: 1.2rem; margin-top: 1.6rem; }
.urgency { display: inline-block; padding: .2rem .6rem; border-radius: 4px; background: #e4e7eb; }
.urgency.urgent { background: #fddede; }
.urgency.soon { background: #fff3cd; }
.finding { margin-bottom: .8rem; }
.finding .category { font-weight: bold; }
footer { margin-top: 2.4rem; font-size: .8rem; color: #616e7c; }
</style>
</head>
<body>
<h1>Health Report</h1>
<p class="urgency {{.Insights.Urgency}}">Urgency: {{.Insights.Urgency}}</p>
<h2>Summary</h2>
<p>{{.Insights.Summary}}</p>
{{if .Insights.KeyFindings}}<h2>Key Findings</h2>
{{range .Insights.KeyFindings}}<div class="finding">
<span class="category">{{.Category}}</span>: {{.Finding}}
<p>{{.Explanation}}</p>
</div>
{{end}}{{end}}
{{if .Insights.AbnormalValues}}<h2>Values Outside Normal Range</h2>
<ul>
{{range .Insights.AbnormalValues}}<li><strong>{{.TestName}}</strong> ({{.Value}}): {{.Explanation}}</li>
{{end}}</ul>
{{end}}
{{if and .IncludeDoctorQuestions .Insights.DoctorQuestions}}<h2>Questions for Your Doctor</h2>
<ol>
{{range .Insights.DoctorQuestions}}<li>{{.}}</li>
{{end}}</ol>
{{end}}
{{if .Insights.Recommendations}}<h2>Recommendations</h2>
<ul>
{{range .Insights.Recommendations}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
{{if .Insights.FamilyScreening}}<h2>Family Screening</h2>
<ul>
{{range .Insights.FamilyScreening}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
{{if .Insights.FollowUpTimeline}}<h2>Follow-Up</h2>
<p>{{.Insights.FollowUpTimeline}}</p>
{{end}}
<footer>Generated {{.GeneratedAt.Format "January 2, 2006"}}. This report explains your records in plain language and is not a diagnosis.</footer>
</body>
</html>
`))

type reportData struct {
	Insights               InsightPayload
	IncludeDoctorQuestions bool
	GeneratedAt            time.Time
}

// TemplateRenderer renders reports through reportTemplate and stores them
// as blobs. An existing blob at the target path is reused untouched.
type TemplateRenderer struct {
	store blobstore.BlobStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewTemplateRenderer builds the canonical renderer over a blob store.
func NewTemplateRenderer(store blobstore.BlobStore, log zerolog.Logger) *TemplateRenderer {
	return &TemplateRenderer{
		store: store,
		log:   log.With().Str("component", "report-renderer").Logger(),
		now:   time.Now,
	}
}

func (r *TemplateRenderer) RenderReport(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if req.StoragePath == "" {
		return nil, blobstore.ErrMissingPath
	}

	exists, err := r.store.Exists(ctx, req.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("checking report blob: %w", err)
	}
	if exists {
		return &RenderResult{StoragePath: req.StoragePath, Cached: true}, nil
	}

	var buf bytes.Buffer
	data := reportData{
		Insights:               req.Insights,
		IncludeDoctorQuestions: req.IncludeDoctorQuestions,
		GeneratedAt:            r.now().UTC(),
	}
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	obj, err := r.store.Put(ctx, req.StoragePath, "text/html", &buf)
	if err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	r.log.Info().
		Str("session_id", req.SessionID.String()).
		Str("path", req.StoragePath).
		Int64("size", obj.Size).
		Msg("report rendered")
	return &RenderResult{StoragePath: req.StoragePath, Size: obj.Size}, nil
}
