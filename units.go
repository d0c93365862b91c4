package nfwgobfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const DefaultUnitDir = "/tmp/nf_wgobfs"

var serviceTemplate = template.Must(template.New("service").Parse(`[Unit]
Description=NFQUEUE WireGuard obfuscator queue {{.QueueNum}}
After=network.target

[Service]
Type=simple
ExecStart=/usr/bin/nfwgobfs --queue {{.QueueNum}}
Restart=on-failure

[Install]
WantedBy=multi-user.target
`))

var targetTemplate = template.Must(template.New("target").Parse(`[Unit]
Description=NFQUEUE WireGuard obfuscator (all queues)
Requires=multi-user.target
Wants={{.Wants}}

[Install]
WantedBy=multi-user.target
`))

// GenerateSystemdUnits writes one templated service unit per entry plus
// a target unit wanting them all into dir, then prints install
// instructions.
func GenerateSystemdUnits(entries []QueueEntry, dir string) (err error) {
	if err = os.MkdirAll(dir, 0755); err != nil {
		return
	}
	unitNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := fmt.Sprintf("nf_wgobfs@%d.service", entry.QueueNum)
		path := filepath.Join(dir, name)
		f, ferr := os.Create(path)
		if ferr != nil {
			err = ferr
			return
		}
		err = serviceTemplate.Execute(f, entry)
		f.Close()
		if err != nil {
			return
		}
		fmt.Printf("Generated %s\n", path)
		unitNames = append(unitNames, name)
	}

	targetPath := filepath.Join(dir, "nf_wgobfs.target")
	f, err := os.Create(targetPath)
	if err != nil {
		return
	}
	err = targetTemplate.Execute(f, struct{ Wants string }{Wants: strings.Join(unitNames, " ")})
	f.Close()
	if err != nil {
		return
	}
	fmt.Printf("Generated %s\n", targetPath)

	fmt.Println("\nTo install and activate these units, run:")
	fmt.Printf("  sudo cp %s/nf_wgobfs@*.service /etc/systemd/system/\n", dir)
	fmt.Printf("  sudo cp %s/nf_wgobfs.target /etc/systemd/system/\n", dir)
	fmt.Println("  sudo systemctl daemon-reload")
	fmt.Println("  sudo systemctl enable nf_wgobfs.target")
	fmt.Println("  sudo systemctl start nf_wgobfs.target")
	return
}
