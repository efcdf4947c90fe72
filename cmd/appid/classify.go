package main

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/engine"
)

type classifyInput struct {
	userAgent   string
	host        string
	url         string
	referer     string
	contentType string
	via         string
	server      string
	workingWith string
}

func newClassifyCmd() *cobra.Command {
	var configPath string
	var in classifyInput

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Identify single header values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == (classifyInput{}) {
				return errors.New("nothing to classify: pass at least one of --ua, --url, --content-type, --via, --server, --x-working-with")
			}
			e, err := loadEngine(configPath)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Input", "Service", "Client", "Payload", "Version"})
			for _, row := range classify(e, in) {
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to config file (built-in signatures only when empty)")
	f.StringVar(&in.userAgent, "ua", "", "User-Agent value")
	f.StringVar(&in.host, "host", "", "Host overriding the URL authority")
	f.StringVar(&in.url, "url", "", "Absolute request URL")
	f.StringVar(&in.referer, "referer", "", "Referer URL")
	f.StringVar(&in.contentType, "content-type", "", "Response Content-Type value")
	f.StringVar(&in.via, "via", "", "Via header value")
	f.StringVar(&in.server, "server", "", "Server header value")
	f.StringVar(&in.workingWith, "x-working-with", "", "X-Working-With header value")

	return cmd
}

func classify(e *engine.Engine, in classifyInput) []table.Row {
	var rows []table.Row
	if in.userAgent != "" {
		if res, ok := e.ClassifyUserAgent([]byte(in.userAgent)); ok {
			rows = append(rows, table.Row{"user-agent", appName(res.Service), appName(res.Client), "", res.Version})
		} else {
			rows = append(rows, missRow("user-agent"))
		}
	}
	if in.url != "" {
		res, ok := e.ResolveURL(in.host, in.url, in.referer)
		if !ok {
			res, ok = e.ResolveMediaURL(in.host, in.url, in.referer)
		}
		if ok {
			rows = append(rows, table.Row{"url", appName(res.Service), appName(res.Client), payloadName(res.Payload, res.ReferredPayload), res.Version})
		} else {
			rows = append(rows, missRow("url"))
		}
	}
	if in.contentType != "" {
		rows = append(rows, table.Row{"content-type", "", "", appName(e.PayloadFromContentType([]byte(in.contentType))), ""})
	}
	if in.via != "" {
		service, ver := e.ServiceFromVia([]byte(in.via))
		rows = append(rows, table.Row{"via", appName(service), "", "", ver})
	}
	if in.workingWith != "" {
		client, ver := engine.ServiceFromXWorkingWith([]byte(in.workingWith))
		rows = append(rows, table.Row{"x-working-with", "", appName(client), "", ver})
	}
	if in.server != "" {
		info := engine.ServerVendorVersion([]byte(in.server))
		rows = append(rows, table.Row{"server", info.Vendor, "", "", info.Version})
		for _, sub := range info.Subtypes {
			rows = append(rows, table.Row{"server subtype", sub.Service, "", "", sub.Version})
		}
	}
	return rows
}

func missRow(input string) table.Row {
	return table.Row{input, "-", "-", "-", ""}
}

func appName(id appid.ID) string {
	if id == appid.None {
		return ""
	}
	return id.String()
}

func payloadName(payload, referred appid.ID) string {
	if referred == appid.None {
		return appName(payload)
	}
	return appName(payload) + " (via " + appName(referred) + ")"
}
