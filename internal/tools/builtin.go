package tools

// Tool ids understood by the analysis service.
const (
	Summary          = "resumen"
	Frequencies      = "frecuencias"
	Correlation      = "correlacion"
	TTest            = "ttest"
	Anova            = "anova"
	LinearRegression = "regresion_lineal"
	Logistic         = "regresion_logistica"
	DecisionTree     = "arbol_decision"
	RandomForest     = "random_forest"
	KMeans           = "kmeans"
	PCA              = "pca"
	WordCloud        = "nube_palabras"
	Sentiment        = "sentimiento"
	TimeSeries       = "descomposicion_serie"
	Pivot            = "pivot_table"
)

// Parameter names sent in the request's parametros object.
const (
	ParamClusters = "n_clusters"
	ParamPeriod   = "periodo"
	ParamAggFunc  = "aggfunc"
)

// Builtin returns the catalog shipped with the CLI, in menu order.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID: Summary, DisplayName: "Descriptive statistics (summary)", Category: "EDA",
			Roles: RoleFeatures, Renderer: RendererSummary,
			FeatureLabel: "numeric columns to summarize",
		},
		{
			ID: Frequencies, DisplayName: "Frequency distribution", Category: "EDA",
			Roles: RoleFeatures, Renderer: RendererFrequency,
			FeatureLabel: "column to count (first one is used)",
		},
		{
			ID: Correlation, DisplayName: "Correlation matrix", Category: "EDA",
			Renderer: RendererMatrix,
		},
		{
			ID: Pivot, DisplayName: "Pivot table", Category: "EDA",
			Roles: RoleTarget | RoleFeatures | RoleParams, MinFeatures: 2, Renderer: RendererPivot,
			TargetLabel: "row (index) column", FeatureLabel: "column dimension, then value column",
			Params: []Param{{Name: ParamAggFunc, Default: "sum", Help: "sum, mean or count"}},
		},
		{
			ID: TTest, DisplayName: "T-test (2 groups)", Category: "Inferential",
			Roles: RoleGrouping, Renderer: RendererTest,
			TargetLabel: "group column (exactly 2 categories)", FeatureLabel: "numeric value column",
		},
		{
			ID: Anova, DisplayName: "ANOVA (3+ groups)", Category: "Inferential",
			Roles: RoleGrouping, Renderer: RendererTest,
			TargetLabel: "group column (3 or more categories)", FeatureLabel: "numeric value column",
		},
		{
			ID: LinearRegression, DisplayName: "Linear regression (simple/multiple)", Category: "Predictive",
			Roles: RoleTarget | RoleFeatures, Renderer: RendererModel,
			TargetLabel: "numeric target", FeatureLabel: "numeric predictors",
		},
		{
			ID: Logistic, DisplayName: "Logistic regression (classification)", Category: "Predictive",
			Roles: RoleTarget | RoleFeatures, Renderer: RendererModel,
			TargetLabel: "class column", FeatureLabel: "numeric predictors",
		},
		{
			ID: DecisionTree, DisplayName: "Decision tree (rules)", Category: "Predictive",
			Roles: RoleTarget | RoleFeatures, Renderer: RendererModel,
			TargetLabel: "target column", FeatureLabel: "predictors",
		},
		{
			ID: RandomForest, DisplayName: "Random forest", Category: "Predictive",
			Roles: RoleTarget | RoleFeatures, Renderer: RendererModel,
			TargetLabel: "target column", FeatureLabel: "predictors",
		},
		{
			ID: KMeans, DisplayName: "K-means clustering (segmentation)", Category: "ML",
			Roles: RoleFeatures | RoleParams, Renderer: RendererClusters,
			FeatureLabel: "numeric columns to cluster on",
			Params: []Param{{Name: ParamClusters, Default: 3, Help: "number of clusters"}},
		},
		{
			ID: PCA, DisplayName: "Dimensionality reduction (PCA)", Category: "ML",
			Roles: RoleFeatures, Renderer: RendererRaw,
			FeatureLabel: "numeric columns",
		},
		{
			ID: WordCloud, DisplayName: "Text mining (word frequencies)", Category: "NLP",
			Roles: RoleTarget, Renderer: RendererText,
			TargetLabel: "text column",
		},
		{
			ID: Sentiment, DisplayName: "Sentiment analysis", Category: "NLP",
			Roles: RoleTarget, Renderer: RendererText,
			TargetLabel: "text column",
		},
		{
			ID: TimeSeries, DisplayName: "Time series decomposition (trend)", Category: "Time",
			Roles: RoleTarget | RoleFeatures | RoleParams, Renderer: RendererTimeSeries,
			TargetLabel: "value column", FeatureLabel: "date column",
			Params: []Param{{Name: ParamPeriod, Default: 12, Help: "season length in months"}},
		},
	}
}

// Default returns a registry holding the builtin catalog.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
