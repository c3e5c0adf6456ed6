package site

import (
	"fmt"
	"html"
	"strings"

	"github.com/gabrielmiguelok/stepform/pkg/forms"
)

// FormLabels holds the stepper's fixed texts.
type FormLabels struct {
	Next    string
	Prev    string
	Submit  string
	Success string
}

// DefaultFormLabels returns the Spanish labels of the contact form.
func DefaultFormLabels() FormLabels {
	return FormLabels{
		Next:    "Siguiente",
		Prev:    "Atrás",
		Submit:  "Enviar",
		Success: "¡Gracias! Te responderemos muy pronto.",
	}
}

// RenderStepperForm renders the markup the stepper controller binds to:
// a progress bar, the form with one .step panel per definition step (the
// first active, the rest hidden), and the hidden success panel.
func RenderStepperForm(def *forms.Definition, labels FormLabels) string {
	var sb strings.Builder

	sb.WriteString(`<section class="stepper" aria-label="Formulario de contacto">`)
	sb.WriteString("\n")
	sb.WriteString(`<progress id="progress" value="0" max="100" aria-label="Progreso"></progress>`)
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf(`<form id="contact-form" action="%s" method="post" novalidate>`,
		html.EscapeString(def.Action)))
	sb.WriteString("\n")

	last := len(def.Steps) - 1
	for i, step := range def.Steps {
		state := "hidden"
		if i == 0 {
			state = "active"
		}
		sb.WriteString(fmt.Sprintf(`<div class="step %s">`, state))
		sb.WriteString("\n")
		sb.WriteString(renderField(step))

		sb.WriteString(`<div class="step-actions">`)
		if i > 0 {
			sb.WriteString(fmt.Sprintf(`<button type="button" class="btn btn-ghost prev">%s</button>`,
				html.EscapeString(labels.Prev)))
		}
		if i < last {
			sb.WriteString(fmt.Sprintf(`<button type="button" class="btn btn-primary next">%s</button>`,
				html.EscapeString(labels.Next)))
		} else {
			// type=button: the controller submits after validating.
			sb.WriteString(fmt.Sprintf(`<button type="button" id="submit-btn" class="btn btn-primary">%s</button>`,
				html.EscapeString(labels.Submit)))
		}
		sb.WriteString("</div>\n")
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</form>\n")
	sb.WriteString(fmt.Sprintf(`<div id="success-advise" class="hidden" role="status">%s</div>`,
		html.EscapeString(labels.Success)))
	sb.WriteString("\n</section>\n")

	return sb.String()
}

func renderField(step forms.StepDefinition) string {
	name := html.EscapeString(step.Field)

	var sb strings.Builder
	sb.WriteString(`<div class="input-container">`)
	sb.WriteString("\n")
	if step.Label != "" {
		sb.WriteString(fmt.Sprintf(`<label for="%s">%s</label>`, name, html.EscapeString(step.Label)))
		sb.WriteString("\n")
	}

	placeholder := ""
	if step.Placeholder != "" {
		placeholder = fmt.Sprintf(` placeholder="%s"`, html.EscapeString(step.Placeholder))
	}
	if step.IsTextarea() {
		sb.WriteString(fmt.Sprintf(`<textarea id="%s" name="%s"%s></textarea>`, name, name, placeholder))
	} else {
		sb.WriteString(fmt.Sprintf(`<input type="%s" id="%s" name="%s"%s autocomplete="off">`,
			step.InputType(), name, name, placeholder))
	}
	sb.WriteString("\n</div>\n")
	return sb.String()
}
