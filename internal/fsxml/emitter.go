package fsxml

import (
    "fmt"
    "strings"

    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Action is one switch application invocation inside an extension.
type Action struct {
    Application string
    Data        string
}

// Program is the in-memory form of one dialplan extension: a name, a
// condition, and the ordered actions the switch executes on match.
type Program struct {
    Name           string
    ConditionField string
    Expression     string
    Actions        []Action
}

// Valid reports whether the program carries everything the switch
// needs. An invalid program is rendered as the error program instead.
func (p *Program) Valid() bool {
    if p == nil || p.Name == "" || p.Expression == "" || len(p.Actions) == 0 {
        return false
    }
    for _, a := range p.Actions {
        if a.Application == "" {
            return false
        }
    }
    return true
}

// ErrorProgram is the announce-and-hangup program substituted whenever
// routing cannot produce anything better. The switch can always
// execute it.
func ErrorProgram() *Program {
    return &Program{
        Name:           "application_error",
        ConditionField: "destination_number",
        Expression:     "^.*$",
        Actions: []Action{
            {Application: "answer"},
            {Application: "playback", Data: "ivr/ivr-call_cannot_be_completed_as_dialed.wav"},
            {Application: "hangup"},
        },
    }
}

// EscapeAttr escapes a value for use inside a double-quoted XML
// attribute. Identifier attributes (name, field, application) go
// through this; expression and data do not, because they carry
// ${...} interpolation and regex text the switch must see verbatim.
func EscapeAttr(s string) string {
    r := strings.NewReplacer(
        "&", "&amp;",
        "<", "&lt;",
        ">", "&gt;",
        `"`, "&quot;",
        "'", "&apos;",
    )
    return r.Replace(s)
}

// RenderDialplan emits the dialplan document for one program in the
// given context. Exactly one context and one extension, always. A
// malformed program is logged and replaced with the error program.
func RenderDialplan(context string, program *Program) string {
    if !program.Valid() {
        name := ""
        if program != nil {
            name = program.Name
        }
        logger.WithField("extension", name).Error("Malformed extension program, substituting error program")
        program = ErrorProgram()
    }

    field := program.ConditionField
    if field == "" {
        field = "destination_number"
    }

    var b strings.Builder
    b.WriteString(`<document type="freeswitch/xml">` + "\n")
    b.WriteString(`  <section name="dialplan">` + "\n")
    fmt.Fprintf(&b, `    <context name="%s">`+"\n", EscapeAttr(context))
    fmt.Fprintf(&b, `      <extension name="%s">`+"\n", EscapeAttr(program.Name))
    fmt.Fprintf(&b, `        <condition field="%s" expression="%s">`+"\n", EscapeAttr(field), program.Expression)
    for _, a := range program.Actions {
        if a.Data == "" {
            fmt.Fprintf(&b, `          <action application="%s"/>`+"\n", EscapeAttr(a.Application))
        } else {
            fmt.Fprintf(&b, `          <action application="%s" data="%s"/>`+"\n", EscapeAttr(a.Application), a.Data)
        }
    }
    b.WriteString("        </condition>\n")
    b.WriteString("      </extension>\n")
    b.WriteString("    </context>\n")
    b.WriteString("  </section>\n")
    b.WriteString("</document>\n")

    return b.String()
}

// Param is a name/value pair used in directory and configuration
// documents. Both sides are escaped on render.
type Param struct {
    Name  string
    Value string
}

// DirectoryUser describes one user entry in a directory document.
// Mailbox is set for voicemail-only pseudo-users whose mailbox name
// differs from the user id.
type DirectoryUser struct {
    ID        string
    Mailbox   string
    Params    []Param
    Variables []Param
}

// RenderDirectory emits a directory document for one domain. A nil
// user yields the empty document the switch reads as "unknown user".
func RenderDirectory(domain string, user *DirectoryUser) string {
    var b strings.Builder
    b.WriteString(`<document type="freeswitch/xml">` + "\n")
    b.WriteString(`  <section name="directory">` + "\n")

    if user != nil {
        fmt.Fprintf(&b, `    <domain name="%s">`+"\n", EscapeAttr(domain))
        if user.Mailbox != "" {
            fmt.Fprintf(&b, `      <user id="%s" mailbox="%s">`+"\n", EscapeAttr(user.ID), EscapeAttr(user.Mailbox))
        } else {
            fmt.Fprintf(&b, `      <user id="%s">`+"\n", EscapeAttr(user.ID))
        }
        if len(user.Params) > 0 {
            b.WriteString("        <params>\n")
            for _, p := range user.Params {
                fmt.Fprintf(&b, `          <param name="%s" value="%s"/>`+"\n", EscapeAttr(p.Name), EscapeAttr(p.Value))
            }
            b.WriteString("        </params>\n")
        }
        if len(user.Variables) > 0 {
            b.WriteString("        <variables>\n")
            for _, v := range user.Variables {
                fmt.Fprintf(&b, `          <variable name="%s" value="%s"/>`+"\n", EscapeAttr(v.Name), EscapeAttr(v.Value))
            }
            b.WriteString("        </variables>\n")
        }
        b.WriteString("      </user>\n")
        b.WriteString("    </domain>\n")
    }

    b.WriteString("  </section>\n")
    b.WriteString("</document>\n")

    return b.String()
}

// RenderNotFound emits the result document the switch reads as
// "no such entry", used for unrecognized configuration keys.
func RenderNotFound() string {
    return `<document type="freeswitch/xml">` + "\n" +
        `  <section name="result">` + "\n" +
        `    <result status="not found"/>` + "\n" +
        "  </section>\n" +
        "</document>\n"
}
