package main

import (
    "context"
    "fmt"
    "os"
    "strconv"

    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/fs-xml-router/internal/models"
)

func createClientCommands() *cobra.Command {
    clientCmd := &cobra.Command{
        Use:   "client",
        Short: "Manage SIP clients",
    }

    var (
        password    string
        displayName string
        voicemail   bool
        vmPin       string
        vmEmail     string
        timeout     int
        callerID    string
    )
    addCmd := &cobra.Command{
        Use:   "add <domain> <user_id>",
        Short: "Add a SIP client to a tenant",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            client := &models.SipClient{
                UserID:            args[1],
                Password:          password,
                DisplayName:       displayName,
                EnableVoicemail:   voicemail,
                VoicemailPin:      vmPin,
                VoicemailEmail:    vmEmail,
                NoAnswerTimeout:   timeout,
                LocalCallerIDName: callerID,
            }
            if err := cliStore.CreateSipClient(ctx, args[0], client); err != nil {
                return err
            }
            fmt.Printf("%s Client '%s' added to %s\n", green("✓"), args[1], args[0])
            return nil
        },
    }
    addCmd.Flags().StringVarP(&password, "password", "p", "", "SIP registration password")
    addCmd.Flags().StringVar(&displayName, "name", "", "Display name")
    addCmd.Flags().BoolVar(&voicemail, "voicemail", false, "Enable voicemail")
    addCmd.Flags().StringVar(&vmPin, "vm-pin", "", "Voicemail PIN")
    addCmd.Flags().StringVar(&vmEmail, "vm-email", "", "Voicemail notification email")
    addCmd.Flags().IntVar(&timeout, "timeout", 30, "No-answer timeout in seconds")
    addCmd.Flags().StringVar(&callerID, "caller-id", "", "Local caller-id name")
    addCmd.MarkFlagRequired("password")

    deleteCmd := &cobra.Command{
        Use:   "delete <domain> <user_id>",
        Short: "Delete a SIP client and repair references to it",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := cliStore.DeleteSipClient(ctx, args[0], args[1]); err != nil {
                return err
            }
            fmt.Printf("%s Client '%s' deleted from %s\n", yellow("✓"), args[1], args[0])
            return nil
        },
    }

    clientCmd.AddCommand(addCmd, deleteCmd)
    return clientCmd
}

func createGroupCommands() *cobra.Command {
    groupCmd := &cobra.Command{
        Use:   "group",
        Short: "Manage hunt and ring groups",
    }

    var (
        groupType string
        timeout   int
        members   []string
        vmBox     string
    )
    addCmd := &cobra.Command{
        Use:   "add <domain> <name>",
        Short: "Add a group with ordered members",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            group := &models.Group{
                Name:           args[1],
                Type:           models.GroupType(groupType),
                Timeout:        timeout,
                VoicemailBoxID: vmBox,
            }
            for i, m := range members {
                group.Members = append(group.Members, models.GroupMember{UserID: m, Position: i})
            }
            if err := cliStore.CreateGroup(ctx, args[0], group); err != nil {
                return err
            }
            fmt.Printf("%s Group '%s' added to %s with %d members\n", green("✓"), args[1], args[0], len(members))
            return nil
        },
    }
    addCmd.Flags().StringVarP(&groupType, "type", "t", "hunt", "Group type (hunt/ring)")
    addCmd.Flags().IntVar(&timeout, "timeout", 0, "Ring timeout in seconds")
    addCmd.Flags().StringSliceVarP(&members, "members", "m", nil, "Member user ids, in ring order")
    addCmd.Flags().StringVar(&vmBox, "vm-box", "", "Voicemail box for unanswered calls")

    deleteCmd := &cobra.Command{
        Use:   "delete <domain> <name>",
        Short: "Delete a group",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := cliStore.DeleteGroup(ctx, args[0], args[1]); err != nil {
                return err
            }
            fmt.Printf("%s Group '%s' deleted from %s\n", yellow("✓"), args[1], args[0])
            return nil
        },
    }

    groupCmd.AddCommand(addCmd, deleteCmd)
    return groupCmd
}

func createDIDCommands() *cobra.Command {
    didCmd := &cobra.Command{
        Use:   "did",
        Short: "Manage inbound numbers",
    }

    var (
        routingType    string
        routingTarget  string
        failoverType   string
        failoverTarget string
        inactive       bool
    )
    addCmd := &cobra.Command{
        Use:   "add <domain> <number>",
        Short: "Route a public number into a tenant",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            did := &models.DID{
                DidNumber:             args[1],
                Active:                !inactive,
                RoutingType:           models.RoutingType(routingType),
                RoutingTarget:         routingTarget,
                FailoverRoutingType:   failoverType,
                FailoverRoutingTarget: failoverTarget,
            }
            if err := cliStore.CreateDID(ctx, args[0], did); err != nil {
                return err
            }
            fmt.Printf("%s DID %s routed to %s:%s for %s\n", green("✓"), did.DidNumber, routingType, routingTarget, args[0])
            return nil
        },
    }
    addCmd.Flags().StringVarP(&routingType, "type", "t", "extension", "Routing type (extension/group/ivr/external_number/custom)")
    addCmd.Flags().StringVar(&routingTarget, "target", "", "Routing target")
    addCmd.Flags().StringVar(&failoverType, "failover-type", "", "Failover routing type")
    addCmd.Flags().StringVar(&failoverTarget, "failover-target", "", "Failover routing target")
    addCmd.Flags().BoolVar(&inactive, "inactive", false, "Create the DID disabled")
    addCmd.MarkFlagRequired("target")

    deleteCmd := &cobra.Command{
        Use:   "delete <domain> <number>",
        Short: "Delete a DID",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := cliStore.DeleteDID(ctx, args[0], args[1]); err != nil {
                return err
            }
            fmt.Printf("%s DID %s deleted from %s\n", yellow("✓"), args[1], args[0])
            return nil
        },
    }

    didCmd.AddCommand(addCmd, deleteCmd)
    return didCmd
}

func createGatewayCommands() *cobra.Command {
    gatewayCmd := &cobra.Command{
        Use:   "gateway",
        Short: "Manage the shared upstream gateway pool",
    }

    var (
        realm       string
        username    string
        password    string
        proxy       string
        register    bool
        transport   string
        dtmfType    string
        codecs      string
        secureMedia bool
    )
    addCmd := &cobra.Command{
        Use:   "add <name>",
        Short: "Add an upstream gateway",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            gw := &models.Gateway{
                Name:              args[0],
                Realm:             realm,
                Username:          username,
                Password:          password,
                Proxy:             proxy,
                Register:          register,
                RegisterTransport: transport,
                DTMFType:          dtmfType,
                CodecPrefs:        codecs,
                SecureMedia:       secureMedia,
            }
            if err := cliStore.CreateGateway(ctx, gw); err != nil {
                return err
            }
            fmt.Printf("%s Gateway '%s' added\n", green("✓"), args[0])
            return nil
        },
    }
    addCmd.Flags().StringVar(&realm, "realm", "", "SIP realm")
    addCmd.Flags().StringVarP(&username, "username", "u", "", "Auth username")
    addCmd.Flags().StringVarP(&password, "password", "p", "", "Auth password")
    addCmd.Flags().StringVar(&proxy, "proxy", "", "Outbound proxy")
    addCmd.Flags().BoolVar(&register, "register", true, "Register with the carrier")
    addCmd.Flags().StringVar(&transport, "transport", "udp", "Registration transport")
    addCmd.Flags().StringVar(&dtmfType, "dtmf", "rfc2833", "DTMF type")
    addCmd.Flags().StringVar(&codecs, "codecs", "PCMU,PCMA", "Codec preference list")
    addCmd.Flags().BoolVar(&secureMedia, "secure-media", false, "Require SRTP")
    addCmd.MarkFlagRequired("realm")

    listCmd := &cobra.Command{
        Use:   "list",
        Short: "List gateways",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            gateways, err := cliStore.Gateways(ctx)
            if err != nil {
                return err
            }

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Name", "Realm", "Proxy", "Register", "Transport", "Codecs"})
            for _, gw := range gateways {
                table.Append([]string{
                    gw.Name, gw.Realm, gw.Proxy,
                    strconv.FormatBool(gw.Register),
                    gw.RegisterTransport, gw.CodecPrefs,
                })
            }
            table.Render()
            return nil
        },
    }

    deleteCmd := &cobra.Command{
        Use:   "delete <name>",
        Short: "Delete a gateway",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := cliStore.DeleteGateway(ctx, args[0]); err != nil {
                return err
            }
            fmt.Printf("%s Gateway '%s' deleted\n", yellow("✓"), args[0])
            return nil
        },
    }

    gatewayCmd.AddCommand(addCmd, listCmd, deleteCmd)
    return gatewayCmd
}
