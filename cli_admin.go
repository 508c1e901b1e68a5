// Zone and record administration subcommands, grounded on the circuits/udns
// Python original's udnsctl.py (add/delete/list/show), extended with
// `zone export` per the original's Zone.export() and the spec's admin
// surface.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package main

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/circuits/udns/config"
	"github.com/circuits/udns/ipvalidator"
	"github.com/circuits/udns/rr"
	"github.com/circuits/udns/store"
)

func openStore(cfg *config.Config) *store.Store {
	return store.Open(store.Options{Host: cfg.DBHost, Port: cfg.DBPort})
}

func newZoneCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Manage zones in the record store",
	}

	var ttl uint32
	create := &cobra.Command{
		Use:   "create <zone> ",
		Short: "Register a new zone with a default TTL",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s := openStore(cfg)
			defer s.Close()
			return s.CreateZone(context.Background(), args[0], ttl)
		},
	}
	create.Flags().Uint32Var(&ttl, "ttl", 300, "default TTL for records added without an explicit TTL")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered zones",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s := openStore(cfg)
			defer s.Close()
			zones, err := s.ListZones(context.Background())
			if err != nil {
				return err
			}
			for _, z := range zones {
				fmt.Println(z)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <zone>",
		Short: "Display every record registered to a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return exportZone(cfg, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export <zone>",
		Short: "Export a zone's records in zone-file form",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return exportZone(cfg, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <zone>",
		Short: "Delete a zone and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s := openStore(cfg)
			defer s.Close()
			return s.DeleteZone(context.Background(), args[0])
		},
	})

	return cmd
}

// exportZone lists every record stored for a zone's owners in zone-file
// form, mirroring the original Zone.export().
func exportZone(cfg *config.Config, zone string) error {
	s := openStore(cfg)
	defer s.Close()
	ctx := context.Background()

	owners, err := s.ZoneOwners(ctx, zone)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		records, err := s.RecordsByName(ctx, owner)
		if err != nil {
			return fmt.Errorf("udns: export %s: %w", owner, err)
		}
		for _, r := range records {
			fmt.Println(rr.ZoneLine(r))
		}
	}
	return nil
}

func newRecordCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage records within a zone",
	}

	var (
		rclass string
		rtype  string
		ttl    uint32
	)
	add := &cobra.Command{
		Use:   "add <zone> <rname> <rdata>",
		Short: "Add a record to a zone",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			zone, rname, rdata := args[0], args[1], args[2]

			qtype, ok := dns.StringToType[rtype]
			if !ok {
				return fmt.Errorf("udns: unknown record type %q", rtype)
			}
			if (qtype == dns.TypeA || qtype == dns.TypeAAAA) && !ipvalidator.IsValidIP(rdata) {
				return fmt.Errorf("udns: %q is not a valid IP address for type %s", rdata, rtype)
			}

			owner := rname
			if rname != "@" {
				owner = rname + "." + zone
			} else {
				owner = zone
			}
			s := openStore(cfg)
			defer s.Close()

			recordTTL := ttl
			if !c.Flags().Changed("ttl") {
				if zoneTTL, err := s.ZoneTTL(context.Background(), zone); err == nil {
					recordTTL = zoneTTL
				}
			}
			zoneLine := fmt.Sprintf("%s %d %s %s %s", owner, recordTTL, rclass, rtype, rdata)
			record, err := rr.FromZoneLine(zoneLine)
			if err != nil {
				return err
			}
			return s.AddRecord(context.Background(), zone, rname, record)
		},
	}
	add.Flags().StringVarP(&rclass, "class", "c", "IN", "resource class")
	add.Flags().StringVarP(&rtype, "type", "t", "A", "resource type")
	add.Flags().Uint32Var(&ttl, "ttl", 300, "record TTL (the zone's default TTL when not given, or this default if the zone has none)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <zone> <rname>",
		Short: "Delete a record from a zone",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			s := openStore(cfg)
			defer s.Close()
			return s.DeleteRecord(context.Background(), args[0], args[1])
		},
	})

	return cmd
}
