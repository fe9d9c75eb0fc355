package flowconfig

import (
	"fmt"

	"github.com/c360/formflow/errors"
)

// DefaultRelationAlias is the iteration field holding the linked related uuid
// when a relationship does not name one.
const DefaultRelationAlias = "relationId"

// FlowConfig is one named, declaratively configured multi-screen process
type FlowConfig struct {
	Name      string                    `yaml:"name" json:"name"`
	Screens   map[string]*ScreenConfig  `yaml:"flow" json:"flow"`
	Subflows  map[string]*SubflowConfig `yaml:"subflows,omitempty" json:"subflows,omitempty"`
	Landmarks *Landmarks                `yaml:"landmarks,omitempty" json:"landmarks,omitempty"`

	// ScreenOrder lists screen names in declaration order
	ScreenOrder []string `yaml:"-" json:"screen_order,omitempty"`
}

// ScreenConfig describes a single screen and where it leads
type ScreenConfig struct {
	Name        string       `yaml:"-" json:"name"`
	NextScreens []NextScreen `yaml:"nextScreens" json:"next_screens"`
	Subflow     string       `yaml:"subflow,omitempty" json:"subflow,omitempty"`

	// Condition gates the screen itself: a screen whose condition is false
	// is skipped during navigation and never rendered.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	OnPostAction               string `yaml:"onPostAction,omitempty" json:"on_post_action,omitempty"`
	CrossFieldValidationAction string `yaml:"crossFieldValidationAction,omitempty" json:"cross_field_validation_action,omitempty"`
	BeforeSaveAction           string `yaml:"beforeSaveAction,omitempty" json:"before_save_action,omitempty"`
	AfterSaveAction            string `yaml:"afterSaveAction,omitempty" json:"after_save_action,omitempty"`
	BeforeDisplayAction        string `yaml:"beforeDisplayAction,omitempty" json:"before_display_action,omitempty"`

	Validation *ScreenValidation `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// NextScreen is one candidate transition. An empty Condition marks the
// unconditional fallback.
type NextScreen struct {
	Name      string `yaml:"name" json:"name"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// IsConditional reports whether the transition depends on a condition
func (n NextScreen) IsConditional() bool {
	return n.Condition != ""
}

// ScreenValidation declares field rules as JSON Schema fragments
type ScreenValidation struct {
	Required []string                  `yaml:"required,omitempty" json:"required,omitempty"`
	Fields   map[string]map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
	Messages map[string]string         `yaml:"messages,omitempty" json:"messages,omitempty"`
}

// SubflowConfig describes a repeatable group of screens
type SubflowConfig struct {
	Name                     string        `yaml:"-" json:"name"`
	EntryScreen              string        `yaml:"entryScreen" json:"entry_screen"`
	IterationStartScreen     string        `yaml:"iterationStartScreen" json:"iteration_start_screen"`
	ReviewScreen             string        `yaml:"reviewScreen" json:"review_screen"`
	DeleteConfirmationScreen string        `yaml:"deleteConfirmationScreen" json:"delete_confirmation_screen"`
	Relationship             *Relationship `yaml:"relationship,omitempty" json:"relationship,omitempty"`
}

// Relationship links this subflow's iterations to another subflow's
type Relationship struct {
	RelatesTo     string     `yaml:"relatesTo" json:"relates_to"`
	RelationAlias string     `yaml:"relationAlias,omitempty" json:"relation_alias,omitempty"`
	Filter        string     `yaml:"filter,omitempty" json:"filter,omitempty"`
	RepeatFor     *RepeatFor `yaml:"repeatFor,omitempty" json:"repeat_for,omitempty"`
}

// Alias returns the relation field name, falling back to DefaultRelationAlias
func (r *Relationship) Alias() string {
	if r == nil || r.RelationAlias == "" {
		return DefaultRelationAlias
	}
	return r.RelationAlias
}

// RepeatFor drives a second-level list inside each iteration from a
// multi-value input.
type RepeatFor struct {
	InputName  string `yaml:"inputName" json:"input_name"`
	SaveDataAs string `yaml:"saveDataAs" json:"save_data_as"`
}

// Landmarks names screens with special meaning to the request pipeline
type Landmarks struct {
	FirstScreen      string   `yaml:"firstScreen,omitempty" json:"first_screen,omitempty"`
	AfterSubmitPages []string `yaml:"afterSubmitPages,omitempty" json:"after_submit_pages,omitempty"`
}

// Screen returns the named screen or a NotFound error
func (f *FlowConfig) Screen(name string) (*ScreenConfig, error) {
	screen, ok := f.Screens[name]
	if !ok || screen == nil {
		return nil, errors.NewNotFound(f.Name, name,
			fmt.Sprintf("Screen could not be found in flow configuration for flow %s.", f.Name))
	}
	return screen, nil
}

// Subflow returns the named subflow or a NotFound error
func (f *FlowConfig) Subflow(name string) (*SubflowConfig, error) {
	subflow, ok := f.Subflows[name]
	if !ok || subflow == nil {
		return nil, errors.NewNotFound(f.Name, "",
			fmt.Sprintf("Subflow %s not found in flow %s.", name, f.Name))
	}
	return subflow, nil
}

// IsIterationStartScreen reports whether screen starts an iteration of any subflow
func (f *FlowConfig) IsIterationStartScreen(screen string) bool {
	for _, sf := range f.Subflows {
		if sf.IterationStartScreen == screen {
			return true
		}
	}
	return false
}

// SubflowForDeleteConfirmation returns the subflow whose delete-confirmation
// screen is screen, or nil.
func (f *FlowConfig) SubflowForDeleteConfirmation(screen string) *SubflowConfig {
	for _, name := range sortedKeys(f.Subflows) {
		if f.Subflows[name].DeleteConfirmationScreen == screen {
			return f.Subflows[name]
		}
	}
	return nil
}

// SubflowForReview returns the subflow whose review screen is screen, or nil
func (f *FlowConfig) SubflowForReview(screen string) *SubflowConfig {
	for _, name := range sortedKeys(f.Subflows) {
		if f.Subflows[name].ReviewScreen == screen {
			return f.Subflows[name]
		}
	}
	return nil
}

// IsAfterSubmitPage reports whether screen is listed as an after-submit landmark
func (f *FlowConfig) IsAfterSubmitPage(screen string) bool {
	if f.Landmarks == nil {
		return false
	}
	for _, page := range f.Landmarks.AfterSubmitPages {
		if page == screen {
			return true
		}
	}
	return false
}

// FirstScreen returns the configured first-screen landmark, or the first
// declared screen when none is configured.
func (f *FlowConfig) FirstScreen() string {
	if f.Landmarks != nil && f.Landmarks.FirstScreen != "" {
		return f.Landmarks.FirstScreen
	}
	if len(f.ScreenOrder) > 0 {
		return f.ScreenOrder[0]
	}
	return ""
}

// validate checks that every referenced screen and subflow exists
func (f *FlowConfig) validate() error {
	if f.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "FlowConfig", "validate", "flow name check")
	}
	if len(f.Screens) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("flow %s declares no screens", f.Name), "FlowConfig", "validate", "screen presence check")
	}

	for _, name := range f.orderedScreens() {
		screen := f.Screens[name]
		for _, next := range screen.NextScreens {
			if _, ok := f.Screens[next.Name]; !ok {
				return errors.NewNotFound(f.Name, next.Name,
					fmt.Sprintf("screen %s lists next screen %s which is not configured", name, next.Name))
			}
		}
		if screen.Subflow != "" {
			if _, ok := f.Subflows[screen.Subflow]; !ok {
				return errors.NewNotFound(f.Name, name,
					fmt.Sprintf("screen %s belongs to subflow %s which is not configured", name, screen.Subflow))
			}
		}
	}

	for _, name := range sortedKeys(f.Subflows) {
		sf := f.Subflows[name]
		for role, screen := range map[string]string{
			"entryScreen":              sf.EntryScreen,
			"iterationStartScreen":     sf.IterationStartScreen,
			"reviewScreen":             sf.ReviewScreen,
			"deleteConfirmationScreen": sf.DeleteConfirmationScreen,
		} {
			if screen == "" {
				continue
			}
			if _, ok := f.Screens[screen]; !ok {
				return errors.NewNotFound(f.Name, screen,
					fmt.Sprintf("subflow %s %s %s is not configured", name, role, screen))
			}
		}
		if sf.Relationship != nil && sf.Relationship.RelatesTo != "" {
			if _, ok := f.Subflows[sf.Relationship.RelatesTo]; !ok {
				return errors.NewNotFound(f.Name, "",
					fmt.Sprintf("subflow %s relates to subflow %s which is not configured",
						name, sf.Relationship.RelatesTo))
			}
		}
	}

	if f.Landmarks != nil && f.Landmarks.FirstScreen != "" {
		if _, ok := f.Screens[f.Landmarks.FirstScreen]; !ok {
			return errors.NewNotFound(f.Name, f.Landmarks.FirstScreen, "firstScreen landmark is not configured")
		}
	}

	return nil
}

// orderedScreens returns screen names in declaration order, with any screens
// missing from ScreenOrder appended sorted.
func (f *FlowConfig) orderedScreens() []string {
	seen := make(map[string]bool, len(f.Screens))
	names := make([]string, 0, len(f.Screens))
	for _, name := range f.ScreenOrder {
		if _, ok := f.Screens[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range sortedKeys(f.Screens) {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}
