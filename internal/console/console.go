// Package console is the interactive menu over the clinic stores. It never
// stops on a store failure: every error becomes a status line and control
// returns to the current menu.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"papila/internal/core"
	"papila/pkg/domain"
)

// Console drives the menus.
type Console struct {
	clinic *core.Clinic
	prompt Prompter
	out    io.Writer
}

// New returns a console over clinic that asks through prompt and prints to out.
func New(clinic *core.Clinic, prompt Prompter, out io.Writer) *Console {
	return &Console{clinic: clinic, prompt: prompt, out: out}
}

const (
	actRegister = "register"
	actUpdate   = "update"
	actDelete   = "delete"
	actList     = "list"
	actFilter   = "filter"
	actBack     = "back"
)

// Run shows the main menu until the operator exits. Abandoning a prompt ends
// the session without error.
func (c *Console) Run(ctx context.Context) error {
	c.println(titleStyle.Render("=== OPTIC DISC DIAGNOSIS SYSTEM ==="))
	c.println(mutedStyle.Render(c.clinic.Summary()))
	menu := []Choice{
		{"Patients", "patients"},
		{"Diagnoses", "diagnoses"},
		{"Images", "images"},
		{"Exit", "exit"},
	}
	for {
		choice, err := c.prompt.Select(ctx, "Main menu", menu)
		if err != nil {
			return c.finish(err)
		}
		switch choice {
		case "patients":
			err = c.patientsMenu(ctx)
		case "diagnoses":
			err = c.diagnosesMenu(ctx)
		case "images":
			err = c.imagesMenu(ctx)
		case "exit":
			c.println("Leaving the system...")
			return nil
		}
		if err != nil {
			return c.finish(err)
		}
	}
}

func (c *Console) finish(err error) error {
	if errors.Is(err, ErrQuit) {
		c.println("Leaving the system...")
		return nil
	}
	return err
}

// loop runs one sub-menu. Handlers return only prompt errors; store errors
// are printed by the handlers themselves.
func (c *Console) loop(ctx context.Context, title string, choices []Choice, handlers map[string]func(context.Context) error) error {
	choices = append(choices, Choice{"Back to main menu", actBack})
	for {
		c.println(titleStyle.Render("--- " + strings.ToUpper(title) + " ---"))
		choice, err := c.prompt.Select(ctx, title, choices)
		if err != nil {
			return err
		}
		if choice == actBack {
			return nil
		}
		if h, ok := handlers[choice]; ok {
			if err := h(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Console) patientsMenu(ctx context.Context) error {
	return c.loop(ctx, "Patients", []Choice{
		{"Register patient", actRegister},
		{"Modify patient", actUpdate},
		{"Delete patient", actDelete},
		{"List patients", actList},
	}, map[string]func(context.Context) error{
		actRegister: c.registerPatient,
		actUpdate:   c.updatePatient,
		actDelete:   c.deletePatient,
		actList:     c.listPatients,
	})
}

func (c *Console) registerPatient(ctx context.Context) error {
	name, err := c.prompt.Input(ctx, "Name:", required)
	if err != nil {
		return err
	}
	ageRaw, err := c.prompt.Input(ctx, "Age:", validAge)
	if err != nil {
		return err
	}
	gender, err := c.prompt.Input(ctx, "Gender (M/F/Other):", nil)
	if err != nil {
		return err
	}
	age, _ := strconv.Atoi(ageRaw)
	p, err := c.clinic.Patients.Register(ctx, name, age, gender)
	if err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Patient registered with ID %s.", p.ID))
	return nil
}

func (c *Console) updatePatient(ctx context.Context) error {
	id, err := c.prompt.Input(ctx, "Patient ID:", required)
	if err != nil {
		return err
	}
	name, err := c.prompt.Input(ctx, "New name (blank to keep):", nil)
	if err != nil {
		return err
	}
	ageRaw, err := c.prompt.Input(ctx, "New age (blank to keep):", optional(validAge))
	if err != nil {
		return err
	}
	gender, err := c.prompt.Input(ctx, "New gender (blank to keep):", nil)
	if err != nil {
		return err
	}
	var upd domain.PatientUpdate
	if name != "" {
		upd.Name = &name
	}
	if ageRaw != "" {
		age, _ := strconv.Atoi(ageRaw)
		upd.Age = &age
	}
	if gender != "" {
		upd.Gender = &gender
	}
	if _, err := c.clinic.Patients.Update(ctx, id, upd); err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Patient %s updated.", id))
	return nil
}

func (c *Console) deletePatient(ctx context.Context) error {
	id, err := c.prompt.Input(ctx, "ID of the patient to delete:", required)
	if err != nil {
		return err
	}
	if err := c.clinic.Patients.Delete(ctx, id); err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Patient %s deleted.", id))
	return nil
}

func (c *Console) listPatients(ctx context.Context) error {
	var rows [][]string
	for p := range c.clinic.Patients.List(ctx) {
		rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.Age), p.Gender})
	}
	c.table("No patients registered.", []string{"ID", "Name", "Age", "Gender"}, rows)
	return nil
}

func (c *Console) diagnosesMenu(ctx context.Context) error {
	return c.loop(ctx, "Diagnoses", []Choice{
		{"Register diagnosis", actRegister},
		{"Delete diagnosis", actDelete},
		{"List all diagnoses", actList},
		{"List by patient ID", actFilter},
	}, map[string]func(context.Context) error{
		actRegister: c.registerDiagnosis,
		actDelete:   c.deleteDiagnosis,
		actList:     func(ctx context.Context) error { return c.listDiagnoses(ctx, "") },
		actFilter: func(ctx context.Context) error {
			id, err := c.prompt.Input(ctx, "Patient ID:", required)
			if err != nil {
				return err
			}
			return c.listDiagnoses(ctx, id)
		},
	})
}

func (c *Console) registerDiagnosis(ctx context.Context) error {
	patient, err := c.prompt.Input(ctx, "Patient ID:", required)
	if err != nil {
		return err
	}
	eyeRaw, err := c.prompt.Input(ctx, eyePrompt("Eye"), nil)
	if err != nil {
		return err
	}
	eye, err := domain.ParseEyeSide(eyeRaw)
	if err != nil {
		c.failure(err)
		return nil
	}
	date, err := c.prompt.Input(ctx, "Diagnosis date (YYYY-MM-DD):", nil)
	if err != nil {
		return err
	}
	var values [3]float64
	for i, title := range []string{"Diopter 1:", "Diopter 2:", "Astigmatism:"} {
		raw, err := c.prompt.Input(ctx, title, validFloat)
		if err != nil {
			return err
		}
		values[i], _ = strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	}
	d, err := c.clinic.Diagnoses.Register(ctx, domain.NewDiagnosis{
		PatientID:   patient,
		Date:        date,
		Diopter1:    values[0],
		Diopter2:    values[1],
		Astigmatism: values[2],
		Eye:         eye,
	})
	if err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Diagnosis registered with ID %s.", d.ID))
	return nil
}

func (c *Console) deleteDiagnosis(ctx context.Context) error {
	id, err := c.prompt.Input(ctx, "ID of the diagnosis to delete:", required)
	if err != nil {
		return err
	}
	if err := c.clinic.Diagnoses.Delete(ctx, id); err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Diagnosis %s deleted.", id))
	return nil
}

func (c *Console) listDiagnoses(ctx context.Context, patient string) error {
	var rows [][]string
	for d := range c.clinic.Diagnoses.List(ctx, patient) {
		rows = append(rows, []string{d.ID, d.PatientID, d.Date, formatFloat(d.Diopter1), formatFloat(d.Diopter2), formatFloat(d.Astigmatism), string(d.Eye)})
	}
	c.table("No diagnoses registered.", []string{"ID", "Patient", "Date", "D1", "D2", "Astigmatism", "Eye"}, rows)
	return nil
}

func (c *Console) imagesMenu(ctx context.Context) error {
	return c.loop(ctx, "Optic disc images", []Choice{
		{"Register image", actRegister},
		{"Delete image", actDelete},
		{"List all images", actList},
		{"List images by diagnosis", actFilter},
	}, map[string]func(context.Context) error{
		actRegister: c.registerImage,
		actDelete:   c.deleteImage,
		actList:     func(ctx context.Context) error { return c.listImages(ctx, "") },
		actFilter: func(ctx context.Context) error {
			id, err := c.prompt.Input(ctx, "Diagnosis ID:", required)
			if err != nil {
				return err
			}
			return c.listImages(ctx, id)
		},
	})
}

func (c *Console) registerImage(ctx context.Context) error {
	diagnosis, err := c.prompt.Input(ctx, "Diagnosis ID:", required)
	if err != nil {
		return err
	}
	// Re-asked until valid.
	eyeRaw, err := c.prompt.Input(ctx, eyePrompt("Eye"), func(s string) error {
		_, err := domain.ParseEyeSide(s)
		return err
	})
	if err != nil {
		return err
	}
	eye, _ := domain.ParseEyeSide(eyeRaw)
	captured, err := c.prompt.Input(ctx, "Capture date (YYYY-MM-DD):", nil)
	if err != nil {
		return err
	}
	src, err := c.prompt.Input(ctx, "Full path of the image file:", required)
	if err != nil {
		return err
	}
	desc, err := c.prompt.Input(ctx, "Description (optional):", nil)
	if err != nil {
		return err
	}
	img, err := c.clinic.Images.Register(ctx, domain.NewImage{
		DiagnosisID: diagnosis,
		SourcePath:  src,
		Description: desc,
		Eye:         eye,
		CaptureDate: captured,
	})
	if err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Image registered with ID %s and stored as %s.", img.ID, img.File))
	if u, err := c.clinic.Images.Locate(ctx, img.ID); err == nil {
		c.println(mutedStyle.Render(u))
	}
	return nil
}

func (c *Console) deleteImage(ctx context.Context) error {
	id, err := c.prompt.Input(ctx, "ID of the image to delete:", required)
	if err != nil {
		return err
	}
	if err := c.clinic.Images.Delete(ctx, id); err != nil {
		c.failure(err)
		return nil
	}
	c.success(fmt.Sprintf("Image %s deleted.", id))
	return nil
}

func (c *Console) listImages(ctx context.Context, diagnosis string) error {
	var rows [][]string
	for img := range c.clinic.Images.List(ctx, diagnosis) {
		rows = append(rows, []string{img.ID, img.DiagnosisID, img.File, img.Description, string(img.Eye), img.CaptureDate})
	}
	c.table("No images registered.", []string{"ID", "Diagnosis", "File", "Description", "Eye", "Captured"}, rows)
	return nil
}

func (c *Console) table(empty string, headers []string, rows [][]string) {
	if len(rows) == 0 {
		c.println(mutedStyle.Render(empty))
		return
	}
	c.println(renderTable(headers, rows))
}

func (c *Console) println(s string) { fmt.Fprintln(c.out, s) }

func (c *Console) success(msg string) { c.println(successStyle.Render(msg)) }

func (c *Console) failure(err error) { c.println(failureStyle.Render(Describe(err))) }

// Describe turns a store error into an operator facing sentence.
func Describe(err error) string {
	var nf domain.ErrNotFound
	var le *core.LoadError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("%s %s not found.", capitalize(string(nf.Entity)), nf.ID)
	case errors.Is(err, domain.ErrInvalidEyeSide):
		return "Invalid eye side. It must be 'OD' or 'OS'."
	case errors.Is(err, domain.ErrInvalidAge):
		return "Age must be a non-negative whole number."
	case errors.Is(err, domain.ErrSourceUnreadable):
		return "The image does not exist at the given path or cannot be read."
	case errors.Is(err, domain.ErrImageConflict):
		return "An image is already stored for this patient and eye."
	case errors.As(err, &le):
		return fmt.Sprintf("Cannot read %s: %v", le.Path, le.Err)
	default:
		return "Operation failed: " + err.Error()
	}
}

// eyePrompt lists the accepted eye sides, e.g. "Eye (OD = right eye / OS = left eye):".
func eyePrompt(title string) string {
	sides := make([]string, 0, 2)
	for _, e := range domain.EyeSides() {
		sides = append(sides, fmt.Sprintf("%s = %s", e, e.Label()))
	}
	return fmt.Sprintf("%s (%s):", title, strings.Join(sides, " / "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("a value is required")
	}
	return nil
}

func validAge(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("age must be a whole number")
	}
	if n < 0 {
		return domain.ErrInvalidAge
	}
	return nil
}

func validFloat(s string) error {
	if _, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64); err != nil {
		return errors.New("enter a number, e.g. -1.25")
	}
	return nil
}

func optional(v func(string) error) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return v(s)
	}
}
