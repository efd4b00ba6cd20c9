package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/wishlist-scraper/internal/linkdetect"
	"github.com/maltedev/wishlist-scraper/internal/models"
	"github.com/maltedev/wishlist-scraper/internal/service"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <url>...",
	Short: "Check whether URLs are supported product pages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		type result struct {
			URL           string `json:"url"`
			IsValid       bool   `json:"is_valid"`
			Site          string `json:"site,omitempty"`
			NormalizedURL string `json:"normalized_url,omitempty"`
		}

		results := make([]result, 0, len(args))
		for _, arg := range args {
			target := linkdetect.ExtractSharedURL(arg)
			c := linkdetect.Classify(target)
			results = append(results, result{
				URL:           target,
				IsValid:       c.IsValid,
				Site:          c.SiteName(),
				NormalizedURL: c.NormalizedURL,
			})
		}
		return printJSON(cmd, results)
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Extract product data from a shared link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.service.HandleShared(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !res.Outcome.Succeeded() {
			return fmt.Errorf("%s (%w)", res.Outcome.Reason.Message(), res.Outcome.Err())
		}
		return printJSON(cmd, res.Outcome.Product)
	},
}

var addFlags struct {
	wishlists []int64
	title     string
	price     string
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Extract a product and add it to one or more wishlists",
	Long: `Extracts the product behind <url> and adds it to every wishlist given with --wishlist.
When extraction fails, --title (and optionally --price) are used instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, addFlags.title == "")
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			product   models.ProductData
			sourceURL = linkdetect.ExtractSharedURL(args[0])
		)
		if addFlags.title != "" {
			product, err = service.ManualProduct(addFlags.title, addFlags.price)
			if err != nil {
				return err
			}
		} else {
			res, err := a.service.HandleShared(ctx, args[0])
			if err != nil {
				return err
			}
			if !res.Outcome.Succeeded() {
				return fmt.Errorf("%s Use --title to add it manually", res.Outcome.Reason.Message())
			}
			product = *res.Outcome.Product
			sourceURL = res.Classification.NormalizedURL
		}

		result, err := a.service.AddToWishlists(ctx, addFlags.wishlists, sourceURL, product)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, result); err != nil {
			return err
		}
		if result.Failed() {
			return errors.New("product could not be added to any wishlist")
		}
		return nil
	},
}

var wishlistsFlags struct {
	entries bool
	kind    string
}

var wishlistsCmd = &cobra.Command{
	Use:   "wishlists",
	Short: "List wishlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		var lists []*models.Wishlist
		if wishlistsFlags.entries {
			lists, err = a.store.ListWishlistsWithEntries(cmd.Context())
		} else {
			lists, err = a.store.ListWishlists(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, lists)
	},
}

var createWishlistCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a wishlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.store.CreateWishlist(cmd.Context(), strings.Join(args, " "), wishlistsFlags.kind)
		if err != nil {
			return err
		}
		return printJSON(cmd, w)
	},
}

func init() {
	addCmd.Flags().Int64SliceVarP(&addFlags.wishlists, "wishlist", "w", nil, "target wishlist id (repeatable)")
	addCmd.Flags().StringVar(&addFlags.title, "title", "", "product title for manual entry")
	addCmd.Flags().StringVar(&addFlags.price, "price", "", "product price for manual entry")
	_ = addCmd.MarkFlagRequired("wishlist")

	wishlistsCmd.Flags().BoolVar(&wishlistsFlags.entries, "entries", false, "include entries")
	createWishlistCmd.Flags().StringVar(&wishlistsFlags.kind, "type", "", `wishlist type (default "Monthly")`)
	wishlistsCmd.AddCommand(createWishlistCmd)
}
