package config

import "os"

// Transfer holds the configuration for the transfer backend used by the
// Replicator and the Site Move Verifier.
type Transfer struct {
	// name of the transfer provider ("globus", "move", ...)
	Provider string `yaml:"provider"`
	// root directory at the destination site under which bundles land
	DestRoot string `yaml:"dest_root"`
	// how often the backend is polled for task status, in seconds
	PollSeconds int `yaml:"poll_seconds"`
	// how long a transfer may run before it is canceled, in seconds
	DeadlineSeconds int `yaml:"deadline_seconds"`
	// whether the Replicator polls the transfer to a terminal status itself,
	// or releases the bundle for the verifier to poll later
	ReplicatorWaits bool `yaml:"replicator_waits"`
	// Globus-specific configuration
	Globus GlobusTransfer `yaml:"globus"`
}

// GlobusTransfer holds credentials and collection ids for the Globus
// Transfer API.
type GlobusTransfer struct {
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	SourceCollection string `yaml:"source_collection"`
	DestCollection   string `yaml:"dest_collection"`
	// label attached to submitted transfer tasks
	Label string `yaml:"label"`
}

func defaultTransfer() Transfer {
	return Transfer{
		Provider:        "globus",
		PollSeconds:     60,
		DeadlineSeconds: 3600,
		ReplicatorWaits: true,
		Globus: GlobusTransfer{
			Label: "LTA",
		},
	}
}

func transferFromEnvironment(errs *[]error) Transfer {
	xfer := defaultTransfer()
	if provider := os.Getenv("TRANSFER_PROVIDER"); provider != "" {
		xfer.Provider = provider
	}
	xfer.DestRoot = os.Getenv("DEST_ROOT")
	xfer.PollSeconds = envInt("TRANSFER_POLL_SECONDS", xfer.PollSeconds, errs)
	xfer.DeadlineSeconds = envInt("TRANSFER_DEADLINE_SECONDS", xfer.DeadlineSeconds, errs)
	xfer.ReplicatorWaits = envBool("REPLICATOR_WAITS", xfer.ReplicatorWaits, errs)
	xfer.Globus.ClientID = os.Getenv("GLOBUS_CLIENT_ID")
	xfer.Globus.ClientSecret = os.Getenv("GLOBUS_CLIENT_SECRET")
	xfer.Globus.SourceCollection = os.Getenv("GLOBUS_SOURCE_COLLECTION")
	xfer.Globus.DestCollection = os.Getenv("GLOBUS_DEST_COLLECTION")
	if label := os.Getenv("GLOBUS_LABEL"); label != "" {
		xfer.Globus.Label = label
	}
	return xfer
}
